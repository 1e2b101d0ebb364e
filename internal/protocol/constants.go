package protocol

import "time"

const (
	ToolNameSearch      = "search_laptops"
	ToolNameFindSimilar = "find_similar_laptops"
	ToolNameGetByID     = "get_laptop_by_id"
	ToolNameRefresh     = "refresh_laptop_data"
)

const (
	MethodListTools = "list_tools"
	MethodCallTool  = "call_tool"

	// prefixed spellings kept for older clients
	MethodListToolsAlias = "mcp.list_tools"
	MethodCallToolAlias  = "mcp.call_tool"
)

const (
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeMissingField = "MISSING_FIELD"
	ErrorCodeStoreFailure = "STORE_FAILURE"
)

const (
	ServerName    = "laptop-search-server"
	ServerVersion = "1.0.0"

	DefaultListenAddr    = "127.0.0.1:8080"
	DefaultTCPListenAddr = "127.0.0.1:9876"
	DefaultMCPPath       = "/mcp"

	DefaultKeepAlive = 15 * time.Second
)
