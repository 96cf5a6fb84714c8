package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/wire"
)

func newSignInCmd(g *globalFlags) *cobra.Command {
	var req wire.SignInRequest
	var userData string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Store a session for the app",
		Long: `Sign in with an app private key and storage hub. The session is kept in
the configured store and restored by every later command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userData != "" {
				req.UserData = json.RawMessage(userData)
			}
			if req.Domain == "" {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				req.Domain = cfg.AppDomain
			}
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				if err := h.SignIn(ctx, req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", req.IdentityAddress)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Domain, "domain", "", "App domain of the session (default --app-domain)")
	f.StringVar(&req.AppPrivateKey, "private-key", "", "App private key (hex)")
	f.StringVar(&req.IdentityAddress, "identity", "", "Identity address")
	f.StringVar(&req.HubURL, "hub-url", "", "Storage hub URL")
	f.StringVar(&userData, "user-data", "", "Extra user data (JSON object)")
	cmd.MarkFlagRequired("private-key")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("hub-url")
	return cmd
}

func newSignOutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				if err := h.SignUserOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

type statusReport struct {
	State           string `json:"state"`
	SignedIn        bool   `json:"signedIn"`
	AppDomain       string `json:"appDomain,omitempty"`
	IdentityAddress string `json:"identityAddress,omitempty"`
	HubURL          string `json:"hubUrl,omitempty"`
}

func status(ctx context.Context, h *bridge.Host) (statusReport, error) {
	rep := statusReport{State: h.State().String()}
	signedIn, err := h.IsUserSignedIn(ctx)
	if err != nil {
		return rep, err
	}
	rep.SignedIn = signedIn
	if data, ok := h.SessionData(); ok {
		rep.AppDomain = data.AppDomain
		rep.IdentityAddress = data.IdentityAddress
		rep.HubURL = data.HubURL
	}
	return rep, nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				rep, err := status(ctx, h)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func newGetCmd(g *globalFlags) *cobra.Command {
	var opts wire.GetFileOptions
	var output string
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a file from the storage hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				content, err := h.GetFile(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if output != "" && output != "-" {
					return os.WriteFile(output, content.Bytes(), 0o644)
				}
				_, err = cmd.OutOrStdout().Write(content.Bytes())
				return err
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.Decrypt, "decrypt", false, "Decrypt with the app key")
	f.StringVar(&opts.Username, "username", "", "Read another user's file")
	f.StringVar(&opts.App, "app", "", "App origin of the other user's file")
	f.StringVar(&opts.ZoneFileLookupURL, "lookup-url", "", "Name lookup URL prefix")
	f.StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newPutCmd(g *globalFlags) *cobra.Command {
	var opts wire.PutFileOptions
	var binary bool
	cmd := &cobra.Command{
		Use:   "put <path> [file|-]",
		Short: "Write a file to the storage hub",
		Long: `Write a file to the storage hub. Content comes from the named file or
stdin. Valid UTF-8 is sent as text unless --binary is set.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 2 {
				name = args[1]
			}
			data, err := readInput(cmd, "", name)
			if err != nil {
				return err
			}
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				url, err := h.PutFile(ctx, args[0], contentFrom(data, binary), opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.Encrypt, "encrypt", false, "Encrypt before upload")
	f.StringVar(&opts.EncryptionKey, "key", "", "Public key to encrypt for (default app key)")
	f.StringVar(&opts.ContentType, "content-type", "", "Content type to store")
	f.BoolVar(&binary, "binary", false, "Send content as bytes")
	return cmd
}

func newLookupCmd(g *globalFlags) *cobra.Command {
	var lookupURL string
	cmd := &cobra.Command{
		Use:   "lookup <username>",
		Short: "Resolve a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				profile, err := h.LookupProfile(ctx, args[0], lookupURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
	cmd.Flags().StringVar(&lookupURL, "lookup-url", "", "Name lookup URL prefix")
	return cmd
}

func newEncryptCmd(g *globalFlags) *cobra.Command {
	var opts wire.CryptoOptions
	var text, input string
	var binary bool
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt content for a public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, text, input)
			if err != nil {
				return err
			}
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				c, err := h.EncryptContent(ctx, contentFrom(data, binary), opts).Get()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.JSON())
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.PublicKey, "public-key", "", "Recipient public key (default app key)")
	f.StringVar(&text, "text", "", "Inline content")
	f.StringVarP(&input, "input", "i", "", "Read content from file (default stdin)")
	f.BoolVar(&binary, "binary", false, "Encrypt content as bytes")
	return cmd
}

func newDecryptCmd(g *globalFlags) *cobra.Command {
	var opts wire.CryptoOptions
	var input string
	cmd := &cobra.Command{
		Use:   "decrypt [cipher-json]",
		Short: "Decrypt a cipher object",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inline string
			if len(args) == 1 {
				inline = args[0]
			}
			data, err := readInput(cmd, inline, input)
			if err != nil {
				return err
			}
			c, err := cipher.Parse(data)
			if err != nil {
				return err
			}
			return g.withHost(cmd, func(ctx context.Context, h *bridge.Host) error {
				content, err := h.DecryptContent(ctx, c, opts)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(content.Bytes())
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.PrivateKey, "private-key", "", "Private key (default app key)")
	f.StringVarP(&input, "input", "i", "", "Read cipher object from file (default stdin)")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an app key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := cipher.GenerateKey()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"privateKey": priv,
				"publicKey":  pub,
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
