package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/getmockd/wshandshake/pkg/auth"
	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/trust"
)

// promptTrust asks on the terminal whether to proceed past a certificate
// problem. The certificate summary is written to w first.
func promptTrust(w io.Writer) dialer.TrustFunc {
	return func(ctx context.Context, cert *dialer.CertificateInfo) bool {
		fmt.Fprintf(w, "Certificate problem for %s: %s\n", cert.URL.Host, cert.Code)
		if len(cert.Chain) > 0 {
			leaf := cert.Chain[0]
			fmt.Fprintf(w, "  subject:     %s\n", leaf.Subject.String())
			fmt.Fprintf(w, "  issuer:      %s\n", leaf.Issuer.String())
			fmt.Fprintf(w, "  valid:       %s to %s\n", leaf.NotBefore.Format("2006-01-02"), leaf.NotAfter.Format("2006-01-02"))
			if len(leaf.DNSNames) > 0 {
				fmt.Fprintf(w, "  names:       %s\n", strings.Join(leaf.DNSNames, ", "))
			}
			fmt.Fprintf(w, "  fingerprint: %s\n", trust.Fingerprint(leaf))
		}

		var proceed bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Proceed with this certificate?").
					Affirmative("Proceed").
					Negative("Abort").
					Value(&proceed),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			return false
		}
		return proceed
	}
}

// promptCredentials asks for a username and password for each challenge.
func promptCredentials() auth.Store {
	return auth.StoreFunc(func(ctx context.Context, q auth.Query) (auth.Credentials, bool) {
		var username, password string

		title := fmt.Sprintf("%s authentication for %s", kindTitle(q.Scheme), q.URL.Host)
		if q.Realm != "" {
			title += fmt.Sprintf(" (realm %q)", q.Realm)
		}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(title).
					Description("Username").
					Value(&username),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.RunWithContext(ctx); err != nil || username == "" {
			return auth.Credentials{}, false
		}
		return auth.Credentials{Username: username, Password: password}, true
	})
}
