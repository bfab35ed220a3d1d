package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/casapps/landregistry/src/pkg/client"
	"github.com/casapps/landregistry/src/pkg/session"
)

var errNotSignedIn = errors.New("not signed in, run `landregistry login` first")

// remote is a client plus the session built on it
type remote struct {
	api     *client.Client
	session *session.Session
}

// connect builds the client from the persistent flags and restores any
// stored session. A rejected stored token is not an error here; commands
// that need a user check for one themselves.
func connect(cmd *cobra.Command) (*remote, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	tokenFile, _ := cmd.Flags().GetString("token-file")
	if tokenFile == "" {
		path, err := client.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
		tokenFile = path
	}

	store := client.NewFileTokenStore(tokenFile)
	api := client.New(apiURL,
		client.WithTokenStore(store),
		client.WithUserAgent("landregistry-cli/"+Version),
	)
	sess := session.New(api, store)
	api.SetUnauthorizedHandler(sess.HandleUnauthorized)

	if err := sess.Init(cmd.Context()); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return nil, err
	}
	return &remote{api: api, session: sess}, nil
}

// require checks the session may open path, the way a front end's route
// guard would
func (r *remote) require(path string) error {
	redirect, _ := r.session.Guard(path)
	switch redirect {
	case "":
		return nil
	case session.LoginPath:
		return errNotSignedIn
	default:
		return errors.New("this command requires an administrator")
	}
}

// authed wraps a command body that needs a signed-in user allowed on path
func authed(path string, fn func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := connect(cmd)
		if err != nil {
			return err
		}
		if err := r.require(path); err != nil {
			return err
		}
		return fn(cmd.Context(), r, cmd, args)
	}
}

func newLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and store the token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := connect(cmd)
			if err != nil {
				return err
			}

			var user *client.User
			if demo, _ := cmd.Flags().GetString("demo"); demo != "" {
				user, err = r.session.DemoLogin(cmd.Context(), demo)
			} else {
				user, err = interactiveLogin(cmd, r, args)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Username, user.Role)
			return nil
		},
	}
	cmd.Flags().String("demo", "", "sign in as a demo account: user or admin")
	cmd.Flags().String("totp", "", "two-factor code")
	return cmd
}

func interactiveLogin(cmd *cobra.Command, r *remote, args []string) (*client.User, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Fprint(cmd.OutOrStdout(), "Username or email: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		username = strings.TrimSpace(line)
	}

	password, err := readPassword(cmd, in)
	if err != nil {
		return nil, err
	}
	totp, _ := cmd.Flags().GetString("totp")

	return r.session.Login(cmd.Context(), client.LoginRequest{
		Username: username,
		Password: password,
		TOTPCode: totp,
	})
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		return string(b), err
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := connect(cmd)
			if err != nil {
				return err
			}
			if revoke, _ := cmd.Flags().GetBool("revoke"); revoke && r.session.IsAuthenticated() {
				if err := r.api.Logout(cmd.Context()); err != nil {
					return err
				}
			}
			if err := r.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().Bool("revoke", false, "also revoke the session on the server")
	return cmd
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: authed("/profile", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			u := r.session.User()
			w := table(cmd)
			fmt.Fprintf(w, "Username:\t%s\n", u.Username)
			fmt.Fprintf(w, "Name:\t%s\n", u.DisplayName())
			fmt.Fprintf(w, "Email:\t%s\n", u.Email)
			fmt.Fprintf(w, "Role:\t%s\n", u.Role)
			fmt.Fprintf(w, "Wallet:\t%s\n", u.WalletAddress)
			fmt.Fprintf(w, "Two-factor:\t%t\n", u.TwoFactorEnabled)
			return w.Flush()
		}),
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiURL, _ := cmd.Flags().GetString("api-url")
			h, err := client.New(apiURL).Health(cmd.Context())
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintf(w, "Status:\t%s\nVersion:\t%s\nUptime:\t%s\n", h.Status, h.Version, h.Uptime)
			for name, c := range h.Components {
				fmt.Fprintf(w, "%s:\t%s\t%s\n", name, c.Status, c.Message)
			}
			return w.Flush()
		},
	}
}

func table(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
