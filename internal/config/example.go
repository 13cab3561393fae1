package config

// exampleConfig is written verbatim when no configuration file exists.
const exampleConfig = `# amiharvest configuration.
#
# Edit the values below and restart the process. Every setting can also be
# overridden through the environment, e.g. AMIHARVEST_BASIC_TARGET_DIRECTORY.

basic:
  # Directory event log files are written to.
  target-directory: events
  # With true, each server writes under its own subdirectory named after
  # the server.
  directory-per-server: false

runtime:
  # Event bus capacity between the sessions and the file/database sinks.
  bus-buffer: 50000
  # Per-session outbound buffer.
  session-buffer: 1024
  # Reconnect backoff bounds for servers with reconnect enabled.
  reconnect-min-backoff: 1s
  reconnect-max-backoff: 1m
  # Read-only status API.
  api-enabled: true
  api-addr: 127.0.0.1:3000

# Upstream AMI servers to harvest events from. The name is the routing key
# for log files and the %SERVER_NAME% rule field; it must be unique.
servers:
  - name: example
    host: 127.0.0.1
    port: 5038
    username: admin
    password: admin
    # Set false to give up after a single connection attempt.
    reconnect: true

# Database targets rule inserts can execute against. Ids must be unique.
databases:
  - id: example
    host: example.com
    port: 3306
    user: example
    password: example
    database: example

# Mapping rules. Each event whose Event header equals the rule's event is
# inserted into the rule's table, one column per mapping, in order. "from"
# is a header name, or %SERVER_NAME% for the originating server's name.
# A header missing from the event inserts NULL.
rules:
  - event: example
    database: example
    table: example
    columns:
      - { from: example_event_property, to: example_db_column }
      - { from: "%SERVER_NAME%", to: example_db_column_2 }
`
