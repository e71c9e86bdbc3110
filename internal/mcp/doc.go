// Package mcp exposes the governance engine to agents as an MCP server.
//
// The tools are read-only: agents look up how a tool is routed and
// classified, check a plan against the constitution before submitting it,
// read the audit log and fetch the escalation responses. Nothing here
// invokes a target tool server.
package mcp
