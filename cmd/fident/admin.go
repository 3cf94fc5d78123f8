package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexZinkM/fident/internal/auth"
	"github.com/AlexZinkM/fident/internal/config"
	"github.com/AlexZinkM/fident/internal/devbackend"
	"github.com/AlexZinkM/fident/internal/logger"
	"github.com/AlexZinkM/fident/internal/secretstore"
	"github.com/AlexZinkM/fident/solana"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func rekeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt all stored secrets under a new passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rk, ok := a.store.(secretstore.Rekeyer)
			if !ok {
				return fmt.Errorf("backend %q cannot be rekeyed", a.cfg.SecretStoreBackend)
			}

			oldPassword, err := config.GetStorePasswordBytes()
			if err != nil {
				return err
			}
			defer clear(oldPassword)

			newPassword, err := config.ReadHidden("New passphrase: ")
			if err != nil {
				return err
			}
			defer clear(newPassword)
			confirm, err := config.ReadHidden("Repeat new passphrase: ")
			if err != nil {
				return err
			}
			defer clear(confirm)
			if string(newPassword) != string(confirm) {
				return errors.New("passphrases do not match")
			}

			if err := rk.Rekey(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			config.SetStorePassword(newPassword)
			a.log.Info("secret store rekeyed", zap.String("backend", a.cfg.SecretStoreBackend))
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store a backend access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := config.ReadHidden("Access token: ")
			if err != nil {
				return err
			}
			defer clear(raw)

			p, err := auth.Login(cmd.Context(), a.store, string(raw))
			if err != nil {
				return err
			}
			principal, _ := p.Principal()
			fmt.Println("Signed in as", principal)
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token (the wallet seed is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := auth.Logout(cmd.Context(), a.store); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func devBackendCmd() *cobra.Command {
	var (
		addr      string
		broadcast bool
	)
	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run an in-memory identity record service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
			if err != nil {
				return err
			}
			defer log.Sync()

			var submitter devbackend.Submitter
			if broadcast {
				submitter = solana.NewLedger(cfg.SolanaRPCURL, nil, log.Named("ledger"))
			}
			b := devbackend.New(submitter, log.Named("devbackend"))

			mux := http.NewServeMux()
			mux.Handle("/graphql", b.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.Close()
			}()

			log.Info("dev backend listening", zap.String("addr", "http://"+addr+"/graphql"), zap.Bool("broadcast", broadcast))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3001", "Listen address")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Broadcast submitted transactions to SOLANA_RPC_URL")
	return cmd
}
