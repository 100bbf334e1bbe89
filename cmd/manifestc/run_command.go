package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/client"
	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/internal/validate"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		outPath string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "run <manifest-file>",
		Short: "Execute a manifest's job graph against the configured MCP servers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			compiler, err := ctx.compiler()
			if err != nil {
				return err
			}

			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			if len(m.Jobs) == 0 {
				m.Jobs = compiler.Decomposer().Decompose(m)
			}
			if ok, vs := compiler.Validator().Validate(m, validate.ScopeFinal); !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), violationsTable(validate.Errors(vs)))
				return errInvalidManifest
			}
			if len(cfg.Servers) == 0 {
				return fmt.Errorf("no MCP servers configured")
			}

			clients, err := connectServers(cmd, cfg.Servers, logger)
			defer func() {
				for _, c := range clients {
					c.Close()
				}
			}()
			if err != nil {
				return err
			}

			dispatcher, err := client.NewDispatcher(clients, cfg.Servers, cfg.Dispatch, logger)
			if err != nil {
				return err
			}
			if err := dispatcher.CheckRoutes(m.Jobs); err != nil {
				return err
			}

			report, err := dispatcher.Run(cmd.Context(), m.Jobs)
			if report != nil {
				report.Apply(m, m.Jobs)
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = args[0]
			}
			if err := m.Save(outPath); err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), outcomesTable(report))
			}
			if failed := report.Count(client.JobFailed); failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(report.Outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the updated manifest here instead of in place")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the dispatch report as JSON")

	return cmd
}

// connectServers connects to every configured server in name order. Clients
// connected before a failure are returned so the caller can close them.
func connectServers(cmd *cobra.Command, servers map[string]types.ServerConfig, logger *zap.Logger) (map[string]client.MCPClient, error) {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make(map[string]client.MCPClient, len(servers))
	for _, name := range names {
		c, err := client.ConnectServer(cmd.Context(), servers[name])
		if err != nil {
			return clients, err
		}
		serverName, version := c.GetServerInfo()
		logger.Info("connected to MCP server",
			zap.String("stage", "dispatch"),
			zap.String("server", name),
			zap.String("name", serverName),
			zap.String("version", version))
		clients[name] = c
	}
	return clients, nil
}
