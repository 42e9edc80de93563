package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mengyunzhi/wechat-proxy/internal/app"
	"github.com/mengyunzhi/wechat-proxy/internal/config"
	"github.com/mengyunzhi/wechat-proxy/internal/logger"
	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

const usage = `usage: wxproxy <command> [flags]

commands:
  qrcode    fetch a temporary qr code for a scene
  template  send a template message read from a YAML/JSON file
  serve     run the scan landing callback server
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "wxproxy: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "qrcode", "template", "serve":
	case "-h", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sugar, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	log := logger.New(sugar)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "qrcode":
		return runQrCode(ctx, cfg, log, rest, out)
	case "template":
		return runTemplate(ctx, cfg, log, rest, out)
	default:
		return runServe(ctx, cfg, log, rest)
	}
}

func runQrCode(ctx context.Context, cfg *config.Config, log logger.Logger, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("qrcode", pflag.ContinueOnError)
	scene := fs.String("scene", "", "scene value carried by the qr code")
	callbackPath := fs.String("callback-path", "", "callback path, defaults to callback_path")
	expire := fs.Int("expire", 0, "expiry in seconds, defaults to qrcode_expire_seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*scene) == "" {
		return errors.New("--scene is required")
	}

	client, err := app.NewProxyClient(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer client.Close()

	var opts []wechatproxy.QrCodeOption
	if fs.Changed("callback-path") {
		opts = append(opts, wechatproxy.WithCallbackPath(*callbackPath))
	}
	if *expire > 0 {
		opts = append(opts, wechatproxy.WithExpireSeconds(*expire))
	}

	body, err := client.FetchTemporaryQrCode(ctx, *scene, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, body)
	return nil
}

func runTemplate(ctx context.Context, cfg *config.Config, log logger.Logger, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("template", pflag.ContinueOnError)
	file := fs.String("file", "", "YAML or JSON template message file")
	autoUUID := fs.Bool("auto-uuid", false, "fill uuid with a random value when the file has none")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadTemplateMessage(*file)
	if err != nil {
		return err
	}
	if *autoUUID && req.UUID == "" {
		req.UUID = uuid.NewString()
	}

	client, err := app.NewProxyClient(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer client.Close()

	body, err := client.SendTemplateMessage(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, body)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, log logger.Logger, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	listen := fs.String("listen", cfg.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.ListenAddr = *listen

	srv, err := app.NewServer(ctx, cfg, log, nil)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	return srv.Run(ctx)
}

func loadTemplateMessage(path string) (wechatproxy.TemplateMessageRequest, error) {
	var req wechatproxy.TemplateMessageRequest
	if strings.TrimSpace(path) == "" {
		return req, errors.New("--file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read template file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &req)
	default:
		err = yaml.Unmarshal(raw, &req)
	}
	if err != nil {
		return req, fmt.Errorf("decode template file: %w", err)
	}
	if req.OpenID == "" || req.TemplateID == "" {
		return req, errors.New("template file needs openid and templateId")
	}
	return req, nil
}
