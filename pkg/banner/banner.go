package banner

import (
	"fmt"

	"assistdb/pkg/config"
)

const banner = `
 █████╗ ███████╗███████╗██╗███████╗████████╗██████╗ ██████╗
██╔══██╗██╔════╝██╔════╝██║██╔════╝╚══██╔══╝██╔══██╗██╔══██╗
███████║███████╗███████╗██║███████╗   ██║   ██║  ██║██████╔╝
██╔══██║╚════██║╚════██║██║╚════██║   ██║   ██║  ██║██╔══██╗
██║  ██║███████║███████║██║███████║   ██║   ██████╔╝██████╔╝
╚═╝  ╚═╝╚══════╝╚══════╝╚═╝╚══════╝   ╚═╝   ╚═════╝ ╚═════╝
`

// PrintWithEff prints the startup banner plus the effective runtime
// configuration so ops can see at a glance what the binary is serving.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/conversations' -d '{\"participants\": [{\"id\": \"u1\"}, {\"id\": \"u2\"}]}'")
	fmt.Println("curl 'http://<host>:<port>/v1/conversations/<id>/messages'")
	fmt.Println("curl 'http://<host>:<port>/v1/widget/bootstrap?embed=<id>&origin=https://example.com&user_id=u1'")

	if eff.Config != nil {
		be := len(eff.Config.Security.APIKeys.Backend)
		fe := len(eff.Config.Security.APIKeys.Frontend)
		ak := len(eff.Config.Security.APIKeys.Admin)
		if be+fe+ak == 0 {
			fmt.Println("\n== Production? =================================================")
			fmt.Println("No API keys configured; every authenticated route will refuse requests")
			fmt.Println("Set security.api_keys in the config file or ASSISTDB_*_KEYS env vars")
		}
	}
	fmt.Println()
}
