package config

import "time"

// ReadHeader limits how long the server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the server drains in-flight requests.
const Shutdown = 5 * time.Second
