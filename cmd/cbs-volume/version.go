package main

const (
	// ToolName is the name printed by -version
	ToolName = "cbs-volume"

	// ToolVersion is the version of the tool
	ToolVersion = "v0.1.0"
)
