package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/access/controller"
	"github.com/m-lab/access/token"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/httpspeed/internal/handler"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

var (
	flagCertFile          = flag.String("cert", "", "The file with server certificates in PEM format.")
	flagKeyFile           = flag.String("key", "", "The file with server key in PEM format.")
	flagEndpoint          = flag.String("https_addr", ":4443", "Listen address/port for TLS connections")
	flagEndpointCleartext = flag.String("http_addr", ":8080", "Listen address/port for cleartext connections")
	flagDataDir           = flag.String("datadir", "./data", "Directory to store data in")
	flagCacheTTL          = flag.Duration("session.ttl", spec.DefaultSessionCacheTTL, "Time after which a session is archived")
	tokenVerifyKey        = flagx.FileBytesArray{}
	tokenVerify           bool
	tokenMachine          string

	// Context for the whole program.
	ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
)

func init() {
	flag.Var(&tokenVerifyKey, "token.verify-key", "Public key for verifying access tokens")
	flag.BoolVar(&tokenVerify, "token.verify", false, "Verify access tokens")
	flag.StringVar(&tokenMachine, "token.machine", "", "Use given machine name to verify token claims")
}

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts, the provided address and handler, and an empty TLS configuration.
func httpServer(addr string, handler http.Handler) *http.Server {
	tlsconf := &tls.Config{}
	return &http.Server{
		Addr:      addr,
		Handler:   handler,
		TLSConfig: tlsconf,
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection and
		// holding it open indefinitely. This applies equally to TLS and non-TLS
		// servers.
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(log.DebugLevel)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	v, err := token.NewVerifier(tokenVerifyKey.Get()...)
	if (tokenVerify) && err != nil {
		rtx.Must(err, "Failed to load verifier")
	}
	// Enforce tokens and limit concurrent transfers on downloads and uploads.
	// Pings are always allowed.
	speedtestTxPaths := controller.Paths{
		spec.DownloadPath: true,
		spec.UploadPath:   true,
	}
	speedtestTokenPaths := controller.Paths{
		spec.DownloadPath: true,
		spec.UploadPath:   true,
	}
	acm, _ := controller.Setup(ctx, v, tokenVerify, tokenMachine,
		speedtestTxPaths, speedtestTokenPaths)

	speedtestMux := http.NewServeMux()
	speedtestHandler := handler.New(*flagDataDir, *flagCacheTTL)
	speedtestMux.Handle(spec.PingPath, http.HandlerFunc(speedtestHandler.Ping))
	speedtestMux.Handle(spec.DownloadPath, http.HandlerFunc(speedtestHandler.Download))
	speedtestMux.Handle(spec.UploadPath, http.HandlerFunc(speedtestHandler.Upload))
	speedtestServerCleartext := httpServer(
		*flagEndpointCleartext,
		acm.Then(speedtestMux))

	log.Info("About to listen for http tests", "endpoint", *flagEndpointCleartext)
	go func() {
		err := speedtestServerCleartext.ListenAndServe()
		if err != http.ErrServerClosed {
			rtx.Must(err, "Could not start cleartext server")
		}
	}()
	servers := []*http.Server{speedtestServerCleartext}

	// Only start TLS-based services if certs and keys are provided
	if *flagCertFile != "" && *flagKeyFile != "" {
		speedtestServer := httpServer(
			*flagEndpoint,
			acm.Then(speedtestMux))
		log.Info("About to listen for https tests", "endpoint", *flagEndpoint)

		go func() {
			err := speedtestServer.ListenAndServeTLS(*flagCertFile, *flagKeyFile)
			if err != http.ErrServerClosed {
				rtx.Must(err, "Could not start TLS server")
			}
		}()
		servers = append(servers, speedtestServer)
	}

	<-ctx.Done()
	cancel()
	log.Info("Shutting down, archiving open sessions")
	for _, srv := range servers {
		srv.Close()
	}
	speedtestHandler.Close()
}
