package main

import (
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
	"github.com/xing15037290/uxmpp-sub000/pkg/timer"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppdisco"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppim"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppping"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsasl"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmpptls"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppvcard"
)

const forceStopTimeout = 10 * time.Second

type flags struct {
	jid                string
	password           string
	server             string
	port               int
	protocol           string
	noSRV              bool
	insecure           bool
	requireTLS         bool
	connectTimeout     time.Duration
	stopTimeout        time.Duration
	negotiationTimeout time.Duration
	pingInterval       time.Duration
	metricsAddr        string
	logLevel           string
}

var opts flags

var rootCmd = &cobra.Command{
	Use:          "uxmpp-client",
	Short:        "Connect to an XMPP server and keep the session alive",
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(opts.logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return run(opts)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.jid, "jid", "", "address to log in as, user@domain[/resource]")
	f.StringVar(&opts.password, "password", os.Getenv("UXMPP_PASSWORD"), "SASL PLAIN password (default $UXMPP_PASSWORD)")
	f.StringVar(&opts.server, "server", "", "server host, skips SRV discovery")
	f.IntVar(&opts.port, "port", 0, "server port (default 5222)")
	f.StringVar(&opts.protocol, "protocol", "", "SRV protocol to query first")
	f.BoolVar(&opts.noSRV, "no-srv", false, "do not query SRV records")
	f.BoolVar(&opts.insecure, "insecure", false, "do not verify the server certificate")
	f.BoolVar(&opts.requireTLS, "require-tls", true, "disconnect from servers that do not offer STARTTLS")
	f.DurationVar(&opts.connectTimeout, "connect-timeout", xmppsession.DefaultConnectTimeout, "per address connect timeout")
	f.DurationVar(&opts.stopTimeout, "stop-timeout", xmppsession.DefaultStopTimeout, "graceful stop grace period")
	f.DurationVar(&opts.negotiationTimeout, "negotiation-timeout", xmppsession.DefaultNegotiationTimeout, "time allowed to bind a resource")
	f.DurationVar(&opts.pingInterval, "ping-interval", time.Minute, "interval between server pings, 0 disables")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	_ = rootCmd.MarkFlagRequired("jid")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func sessionConfig(o flags) (xmppsession.Config, error) {
	jid, err := xmppcore.ParseJID(o.jid)
	if err != nil {
		return xmppsession.Config{}, errors.Wrap(err, "jid")
	}
	cfg := xmppsession.Config{
		Domain:             jid.Domain,
		UserID:             jid.Local,
		Resource:           jid.Resource,
		Server:             o.server,
		Port:               o.port,
		Protocol:           o.protocol,
		DisableSRV:         o.noSRV,
		ConnectTimeout:     o.connectTimeout,
		StopTimeout:        o.stopTimeout,
		NegotiationTimeout: o.negotiationTimeout,
	}
	if o.insecure {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return cfg, nil
}

func run(o flags) error {
	cfg, err := sessionConfig(o)
	if err != nil {
		return err
	}
	log := logrus.StandardLogger()

	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(o.metricsAddr, mux); err != nil {
				log.Errorf("Metrics server: %v", err)
			}
		}()
	}

	reactor, err := ioreactor.New(log)
	if err != nil {
		return err
	}
	defer reactor.Close()
	timers := timer.NewService(log)
	defer timers.Close()

	session := xmppsession.New(reactor, timers, log)
	starttls := xmpptls.New(log)
	starttls.Required = o.requireTLS
	session.RegisterModule(starttls)
	if o.password != "" {
		session.RegisterModule(xmppsasl.New(o.password, log))
	}
	disco := xmppdisco.New(xmppdisco.Identity{
		Category: xmppdisco.IdentityCategoryClient,
		Type:     xmppdisco.IdentityTypeClientPC,
		Name:     "uxmpp",
	}, log, xmppping.NS)
	session.RegisterModule(disco)
	im := xmppim.New(log)
	im.OnMessage = func(msg xmppim.ClientMessage) {
		if msg.Body == "" || msg.From == nil {
			return
		}
		log.WithField("from", msg.From.String()).Infof("Message: %s", msg.Body)
	}
	session.RegisterModule(im)
	vcard := xmppvcard.New(log)
	session.RegisterModule(vcard)
	ping := xmppping.New(log)
	ping.OnTimeout = func(id string) {
		log.Warn("Server stopped answering pings")
		session.Stop(true)
	}
	session.RegisterModule(ping)

	pinger := timers.NewTimer("ping")
	defer pinger.Close()
	session.AddListener(&stateLogger{log: log, bound: func(bound bool) {
		if !bound {
			pinger.Cancel()
			return
		}
		err := vcard.Fetch(session, nil, func(card xmppvcard.IQResult, err error) {
			if err != nil {
				log.Debugf("Own vCard: %v", err)
				return
			}
			log.Infof("Logged in as %s", card.FullName)
		})
		if err != nil {
			log.Warnf("Unable to fetch vCard: %v", err)
		}
		if o.pingInterval <= 0 {
			return
		}
		pinger.Set(o.pingInterval, o.pingInterval, func(time.Time) {
			if _, err := ping.Send(session, nil); err != nil {
				log.Warnf("Unable to ping: %v", err)
			}
		})
	}})

	doneCh := make(chan error, 1)
	go func() { doneCh <- session.Run(cfg) }()

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	var forceStop bool
	stopTimeout := time.NewTimer(forceStopTimeout)
	stopTimeout.Stop()

mainloop:
	for {
		select {
		case sig := <-signalCh:
			if forceStop {
				log.Infof("Got signal %v. Forcing stop.", sig)
				session.Stop(true)
				continue
			}
			log.Info("Got signal ", sig)
			session.Stop(false)
			forceStop = true
			stopTimeout.Reset(forceStopTimeout)
		case <-stopTimeout.C:
			log.Info("Shutdown timeout. Forcing stop.")
			session.Stop(true)
		case err = <-doneCh:
			break mainloop
		}
	}

	if err != nil {
		log.Errorf("Session ended: %v", err)
		return err
	}
	log.Info("Exit.")
	return nil
}

type stateLogger struct {
	log   logrus.FieldLogger
	bound func(bool)
}

func (l *stateLogger) OnStateChange(s *xmppsession.Session, newState, oldState xmppsession.State) {
	entry := l.log.WithFields(logrus.Fields{"from": oldState.String(), "to": newState.String()})
	if newState == xmppsession.StateBound {
		entry = entry.WithField("jid", s.JID().Full())
	}
	entry.Info("Session state changed")
	l.bound(newState == xmppsession.StateBound)
}

func (l *stateLogger) OnFeatures(_ *xmppsession.Session, features []*xmlobj.Object) {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name())
	}
	l.log.Debugf("Stream features: %v", names)
}
