package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/httpapi"
)

func newHTTPCmd(flags *globalFlags) *cobra.Command {
	bg := &backgroundFlags{}
	var (
		host      string
		port      int
		portStart int
		portEnd   int
		portFile  string
	)
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve health, info and RPC endpoints over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, cfg, logger, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			server := cfg.Server
			if cmd.Flags().Changed("host") {
				server.Host = host
			}
			if cmd.Flags().Changed("port") {
				server.Port = port
			}
			if cmd.Flags().Changed("port-start") {
				server.PortStart = portStart
			}
			if cmd.Flags().Changed("port-end") {
				server.PortEnd = portEnd
			}
			if cmd.Flags().Changed("port-file") {
				server.PortFile = portFile
			}

			ln, err := httpapi.Listen(server.Host, server.Port, server.PortStart, server.PortEnd)
			if err != nil {
				return err
			}
			chosen := httpapi.Port(ln)
			if err := httpapi.WritePortFile(server.PortFile, chosen); err != nil {
				_ = ln.Close()
				return err
			}
			defer func() {
				if err := httpapi.RemovePortFile(server.PortFile); err != nil {
					logger.Warn("remove port file failed", zap.Error(err))
				}
			}()
			logger.Info("starting server", zap.String("host", server.Host), zap.Int("port", chosen), zap.String("port_file", server.PortFile))

			stop, err := bg.start(ctx, sess, cfg, logger)
			if err != nil {
				_ = ln.Close()
				return err
			}
			defer stop()

			return httpapi.New(sess, httpapi.Options{Logger: logger, Version: version}).Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "host to bind")
	cmd.Flags().IntVar(&port, "port", 0, "preferred port")
	cmd.Flags().IntVar(&portStart, "port-start", 8000, "start of the fallback port range")
	cmd.Flags().IntVar(&portEnd, "port-end", 9000, "end of the fallback port range")
	cmd.Flags().StringVar(&portFile, "port-file", "", "write the chosen port to this file")
	bg.register(cmd)
	return cmd
}
