package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luma/mrcp/client"
	"github.com/luma/mrcp/metrics"
	"github.com/luma/mrcp/protocol"
	"github.com/luma/mrcp/storage"
)

var (
	// The host to listen on
	httpHost string

	// The port to listen for http requests on
	httpPort string

	// Origins allowed to call the bridge from a browser
	corsOrigins []string

	// Let several bridges share the HTTP port
	httpReuseport bool
)

func init() {
	flags := BridgeCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVar(&httpHost, "http-host", "127.0.0.1", "The host to listen to HTTP requests on")
	flags.StringSliceVar(&corsOrigins, "cors-origin", nil, "Allow browser requests from this origin, can be repeated")
	flags.BoolVar(&httpReuseport, "http-reuseport", false, "Listen with SO_REUSEPORT so several bridges can share the HTTP port")
}

var BridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Expose an MRCP channel over HTTP",
	Long: `Expose an MRCP channel over HTTP

Usage
	MRCP_CHANNEL_ID=32AECB23433801@speechrecog mrcpctl bridge

	curl -XPOST localhost:7362/requests -d '{"method":"GET-PARAMS","headers":{"Voice-Name":""}}'
	curl 'localhost:7362/journal?path=32AECB23433801\@speechrecog.101'

The journal keeps the last MRCP_JOURNAL_MAX_EXCHANGES requests (1000 by
default) with their responses and events, older ones are dropped. Set it to 0
to keep everything.
`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint: errcheck

		if conf.ChannelID == "" {
			return errors.New("No channel given, set MRCP_CHANNEL_ID")
		}

		journal := storage.NewInmemoryStore(storage.WithMaxExchanges(conf.JournalMaxExchanges))

		registry := prometheus.NewRegistry()
		collector := metrics.NewCollector()
		if err := collector.Register(registry); err != nil {
			return err
		}

		options := conf.TransportOptions()
		options.Log = log.Named("transport")

		provider := client.NewProvider(options,
			client.WithJournal(journal),
			client.WithMetrics(collector),
			client.WithResponseTimeout(conf.ResponseTimeout))

		channel, err := provider.CreateChannel(ctx, conf.ChannelID, conf.Host, conf.Port)
		if err != nil {
			return multierr.Combine(err, provider.Close(), journal.Close())
		}

		router := setupRouter(conf.DebugHTTP, corsOrigins, log)
		registerRoutes(router, channel, journal, registry, log)

		s := &http.Server{
			Addr:    net.JoinHostPort(httpHost, httpPort),
			Handler: router,
		}

		listener, err := listenHTTP(s.Addr, httpReuseport)
		if err != nil {
			return multierr.Combine(err, provider.Close(), journal.Close())
		}

		group, groupCtx := errgroup.WithContext(ctx)

		group.Go(func() error {
			if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("Http server errored: %w", err)
			}
			return nil
		})

		group.Go(func() error {
			// Wait for the interrupt signal, or for the server to fail
			<-groupCtx.Done()

			// Restore default behavior on the interrupt signal and notify user of shutdown.
			signalStop()
			log.Info("Shutting down gracefully, press Ctrl+C again to force")

			// The context is used to inform the server it has 5 seconds to finish
			// the request it is currently handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
				return err
			}
			return nil
		})

		log.Info("Listening",
			zap.Stringer("channel", channel.ID()),
			zap.String("mrcpServer", options.Addr()),
			zap.String("httpAddr", s.Addr))

		err = multierr.Combine(group.Wait(), provider.Close(), journal.Close())

		log.Info("Exiting")
		return err
	},
}

func listenHTTP(addr string, reuse bool) (net.Listener, error) {
	var (
		listener net.Listener
		err      error
	)

	if reuse {
		listener, err = reuseport.Listen("tcp", addr)
	} else {
		listener, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to listen on %s: %w", addr, err)
	}

	return listener, nil
}

func setupRouter(debugHTTP bool, corsOrigins []string, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, with RFC3339
	// UTC timestamps.
	r.Use(ginzap.GinzapWithConfig(log.Named("http"), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	return r
}

// sendRequestBody is the JSON body of POST /requests.
type sendRequestBody struct {
	Method      string            `json:"method" binding:"required"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"contentType"`
	ContentID   string            `json:"contentId"`
	Content     string            `json:"content"`
}

type responseBody struct {
	RequestID protocol.RequestID `json:"requestId"`
	Status    int                `json:"status"`
	State     string             `json:"state"`
	Headers   map[string]string  `json:"headers"`
	Content   string             `json:"content,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func newResponseBody(resp *protocol.Response) responseBody {
	headers := make(map[string]string, resp.Headers.Len())
	for _, header := range resp.Headers.All() {
		headers[string(header.Name)] = header.RawValue()
	}

	return responseBody{
		RequestID: resp.RequestID,
		Status:    resp.StatusCode,
		State:     string(resp.State),
		Headers:   headers,
		Content:   resp.Content,
	}
}

func registerRoutes(router *gin.Engine, channel *client.Channel, journal storage.Store, gatherer prometheus.Gatherer, log *zap.Logger) {
	// Ping test
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.GET("/updates", func(c *gin.Context) {
		streamUpdates(c, journal, log.Named("updates"))
	})

	router.POST("/requests", func(c *gin.Context) {
		var body sendRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := channel.CreateRequest(protocol.MethodName(strings.ToUpper(body.Method)))
		for name, value := range body.Headers {
			header, err := protocol.CreateHeader(name, value)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			req.AddHeader(header)
		}

		if body.Content != "" {
			req.SetContent(body.ContentType, body.ContentID, body.Content)
		}

		resp, err := channel.SendRequest(c.Request.Context(), req)

		var invocationErr *client.InvocationError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, newResponseBody(resp))

		case errors.As(err, &invocationErr):
			failed := newResponseBody(invocationErr.Response)
			failed.Error = err.Error()
			c.JSON(http.StatusBadGateway, failed)

		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"requestId": req.RequestID, "error": err.Error()})

		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"requestId": req.RequestID, "error": err.Error()})
		}
	})

	router.GET("/journal", func(c *gin.Context) {
		path := c.Query("path")
		if path == "" {
			backup, err := journal.Backup()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}

			c.Data(http.StatusOK, "application/json", backup)
			return
		}

		value, err := journal.Get(c.Request.Context(), []byte(path))
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "path": path})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", value)
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamUpdates sends every journal update to a websocket client as
// {"key": ..., "value": ...} until the client goes away.
func streamUpdates(c *gin.Context, journal storage.Store, log *zap.Logger) {
	// Listen before upgrading so nothing recorded after the handshake is missed
	updates := journal.ListenToUpdates()
	defer journal.StopListening(updates)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied
		log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	// Reading is the only way to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			msg, err := sjson.SetBytes([]byte(`{}`), "key", string(update.Key))
			if err == nil {
				msg, err = sjson.SetRawBytes(msg, "value", update.Value)
			}
			if err != nil {
				log.Warn("Failed to encode update", zap.ByteString("key", update.Key), zap.Error(err))
				continue
			}

			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("Websocket client went away", zap.Error(err))
				return
			}

		case <-closed:
			return
		}
	}
}
