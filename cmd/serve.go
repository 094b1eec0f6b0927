package cmd

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/api"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API for UI collaborators",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		listen := cfg.Serve.Listen
		if serveListen != "" {
			listen = serveListen
		}

		e := echo.New()
		e.HideBanner = true
		e.Use(middleware.Recover())
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:    true,
			LogStatus: true,
			LogMethod: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				log.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Msg("request")
				return nil
			},
		}))
		api.NewServer(ix).RegisterHandlers(e)

		log.Info().Str("listen", listen).Msg("serving read API")
		return e.Start(listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
