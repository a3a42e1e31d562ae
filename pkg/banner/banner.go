package banner

import (
	"fmt"

	"echoclub/pkg/config"
)

const banner = `
███████╗ ██████╗██╗  ██╗ ██████╗  ██████╗██╗     ██╗   ██╗██████╗
██╔════╝██╔════╝██║  ██║██╔═══██╗██╔════╝██║     ██║   ██║██╔══██╗
█████╗  ██║     ███████║██║   ██║██║     ██║     ██║   ██║██████╔╝
██╔══╝  ██║     ██╔══██║██║   ██║██║     ██║     ██║   ██║██╔══██╗
███████╗╚██████╗██║  ██║╚██████╔╝╚██████╗███████╗╚██████╔╝██████╔╝
╚══════╝ ╚═════╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝╚══════╝ ╚═════╝ ╚═════╝
`

// Print writes the startup banner with the effective runtime settings so
// operators can see at a glance what the process is about to do.
func Print(eff config.Effective, version string) {
	addr := eff.Addr
	if addr == "" {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if eff.Config.Retention.Enabled {
		info := ""
		if eff.Config.Retention.Cron != "" {
			info = " (cron=" + eff.Config.Retention.Cron + ")"
		}
		fmt.Println("- Retention: enabled" + info)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/auth/register - Create an account (JSON: name, password)")
	fmt.Println("POST /v1/auth/login    - Obtain a session token")
	fmt.Println("POST /v1/session       - Join the room")
	fmt.Println("POST /v1/messages      - Send a message (JSON: text)")
	fmt.Println("GET  /v1/ws            - Live message and roster stream")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/auth/register' -d '{\"name\":\"ada\",\"password\":\"lovelace\"}'\n", addr)
	fmt.Printf("curl -X POST 'http://localhost%s/v1/messages' -H 'Authorization: Bearer <token>' -d '{\"text\":\"hello\"}'\n", addr)

	fmt.Println("\n== Logs: =================================================")
}
