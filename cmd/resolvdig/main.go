// Command resolvdig is a small debug client for the resolv package: it
// looks up one name the same way an embedder would, and prints each answer
// with its kind and TTL ("-" for hosts-file and literal answers; cache and
// upstream answers are not told apart).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/folbricht/resolv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	server      string
	configFile  string
	timeout     time.Duration
	types       []string
	noHosts     bool
	noCache     bool
	reloadHosts bool
	recurse     bool
	logLevel    uint32
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "resolvdig <name>",
		Short: "Look up a host name using the resolv library",
		Long: `Look up a host name the same way an embedder of the resolv
library would: literal shortcut, then hosts file, then cache, then an
upstream DNS server. Useful for exercising a resolver configuration; each
answer is printed with its kind and TTL, "-" marking hosts-file and
literal answers.
`,
		Example: `  resolvdig example.com
  resolvdig -t AAAA -t A example.com
  resolvdig --server 1.1.1.1:53 --recurse -t A example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args[0])
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&opt.server, "server", "s", "", "upstream server, addr[:port]")
	cmd.Flags().StringVarP(&opt.configFile, "config", "c", "", "TOML config file with resolver defaults")
	cmd.Flags().DurationVarP(&opt.timeout, "timeout", "T", 0, "overall call timeout, 0 = library default")
	cmd.Flags().StringSliceVarP(&opt.types, "type", "t", nil, "record type(s) to look up, default A,AAAA")
	cmd.Flags().BoolVar(&opt.noHosts, "no-hosts", false, "skip the hosts file")
	cmd.Flags().BoolVar(&opt.noCache, "no-cache", false, "skip the answer cache")
	cmd.Flags().BoolVar(&opt.reloadHosts, "reload-hosts", false, "force a re-read of the hosts file")
	cmd.Flags().BoolVarP(&opt.recurse, "recurse", "r", false, "chase CNAME/DNAME aliases (query mode, single type only)")
	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=Panic .. 6=Trace")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, name string) error {
	if opt.logLevel > 6 {
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.Level(opt.logLevel))
	resolv.SetLogger(logger)

	ro := resolv.Options{Server: opt.server}
	var callDefaults resolv.ResolveOptions
	if opt.configFile != "" {
		fileOpt, err := resolv.LoadConfig(opt.configFile)
		if err != nil {
			return err
		}
		if ro.Server == "" {
			ro.Server = fileOpt.Server
		}
		if ro.IdleTimeout == 0 {
			ro.IdleTimeout = fileOpt.IdleTimeout
		}
		if ro.CacheSweepInterval == 0 {
			ro.CacheSweepInterval = fileOpt.CacheSweepInterval
		}
		callDefaults, err = resolv.LoadDefaultResolveOptions(opt.configFile)
		if err != nil {
			return err
		}
	}
	if opt.timeout == 0 {
		opt.timeout = callDefaults.Timeout
	}
	opt.noHosts = opt.noHosts || callDefaults.NoHosts
	opt.noCache = opt.noCache || callDefaults.NoCache

	r := resolv.New(ro)
	defer r.Close()

	ctx := context.Background()

	if opt.recurse {
		if len(opt.types) != 1 {
			return fmt.Errorf("--recurse requires exactly one --type")
		}
		kind, err := parseKind(opt.types[0])
		if err != nil {
			return err
		}
		answers, err := r.Query(ctx, name, kind, resolv.QueryOptions{
			Server:      opt.server,
			Timeout:     opt.timeout,
			NoHosts:     opt.noHosts,
			ReloadHosts: opt.reloadHosts,
			NoCache:     opt.noCache,
			Recurse:     true,
		})
		if err != nil {
			return err
		}
		printAnswers(answers)
		return nil
	}

	types, err := parseKinds(opt.types)
	if err != nil {
		return err
	}
	answers, err := r.Resolve(ctx, name, resolv.ResolveOptions{
		Server:      opt.server,
		Timeout:     opt.timeout,
		NoHosts:     opt.noHosts,
		ReloadHosts: opt.reloadHosts,
		NoCache:     opt.noCache,
		Types:       types,
	})
	if err != nil {
		return err
	}
	printAnswers(answers)
	return nil
}

func printAnswers(answers []resolv.Answer) {
	for _, a := range answers {
		ttl := "-"
		if a.TTL != resolv.TTLUnset {
			ttl = fmt.Sprintf("%d", a.TTL)
		}
		fmt.Printf("%-30s %-6s %-6s %s\n", a.Data, a.Kind, ttl, "")
	}
}

func parseKinds(raw []string) ([]resolv.Kind, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]resolv.Kind, 0, len(raw))
	for _, s := range raw {
		k, err := parseKind(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func parseKind(s string) (resolv.Kind, error) {
	switch strings.ToUpper(s) {
	case "A":
		return resolv.KindA, nil
	case "AAAA":
		return resolv.KindAAAA, nil
	case "CNAME":
		return resolv.KindCNAME, nil
	case "DNAME":
		return resolv.KindDNAME, nil
	default:
		return 0, fmt.Errorf("unsupported record type %q", s)
	}
}
