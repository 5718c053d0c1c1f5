package dashboard

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/fleet-tracker/internal/authctx"
)

// RenderProfile prints the signed-in user.
func RenderProfile(w io.Writer, s *authctx.Session) error {
	u, ok := s.User()
	if !ok {
		_, err := fmt.Fprintln(w, "Not signed in")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%d\n", u.ID)
	fmt.Fprintf(tw, "Name\t%s\n", u.Name)
	fmt.Fprintf(tw, "Email\t%s\n", u.Email)
	fmt.Fprintf(tw, "Role\t%s\n", u.Role)
	fmt.Fprintf(tw, "Status\t%s\n", u.Status)
	if lat, ok := u.Latitude.Float(); ok {
		lon, _ := u.Longitude.Float()
		fmt.Fprintf(tw, "Location\t%.6f, %.6f\n", lat, lon)
	}
	if u.CreatedAt != "" {
		fmt.Fprintf(tw, "Member since\t%s\n", u.CreatedAt)
	}
	return tw.Flush()
}
