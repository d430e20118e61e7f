package banner

import (
	"fmt"
)

const banner = `
██████╗  █████╗ ██████╗  █████╗ ██╗  ██╗ █████╗ ██████╗ ██████╗ ██╗   ██╗
██╔══██╗██╔══██╗██╔══██╗██╔══██╗██║ ██╔╝██╔══██╗██╔══██╗██╔══██╗╚██╗ ██╔╝
██████╔╝███████║██████╔╝███████║█████╔╝ ███████║██████╔╝██████╔╝ ╚████╔╝
██╔═══╝ ██╔══██║██╔══██╗██╔══██║██╔═██╗ ██╔══██║██╔══██╗██╔══██╗  ╚██╔╝
██║     ██║  ██║██║  ██║██║  ██║██║  ██╗██║  ██║██║  ██║██║  ██║   ██║
╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner with the effective listen address, DB
// path, config source, and version.
func Print(addr, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config source: %s\n", source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/events - Bridge event intake (DMs, channel messages, membership)")
	fmt.Println("GET  /v1/threads?recipient=<id>&open=true - List threads")
	fmt.Println("POST /v1/threads/{id}/reply - Relay a moderator reply")
	fmt.Println("POST /v1/threads/{id}/close - Close a thread")
	fmt.Println("GET  /docs/ - API documentation")
}
