// Package bridge exposes tools hosted by external tool servers through the
// gateway. A Provider lists remote tool descriptors and forwards calls; each
// descriptor becomes an Adapter registered under its own (optionally
// server-prefixed) name. MCPProvider speaks the Model Context Protocol over a
// stdio subprocess or streamable HTTP, and Config/Connect start the servers
// declared in a YAML file.
package bridge
