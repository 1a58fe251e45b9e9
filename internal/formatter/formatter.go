// package formatter renders pipeline responses for the terminal (JSON or lipgloss-styled text)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Envelope is the JSON shape of a response printed by the CLI.
type Envelope struct {
	Status string          `json:"status"`
	Code   int             `json:"code"`
	Body   any             `json:"body,omitempty"`
	Event  *pipeline.Event `json:"event,omitempty"`
}

// NewEnvelope wraps resp for printing.
func NewEnvelope(resp pipeline.Response) Envelope {
	return Envelope{
		Status: resp.Kind.String(),
		Code:   resp.Kind.HTTPStatus(),
		Body:   resp.Payload(),
		Event:  resp.Event,
	}
}

// JSON encodes the envelope of resp, indented when pretty is set.
func JSON(resp pipeline.Response, pretty bool) ([]byte, error) {
	env := NewEnvelope(resp)

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

// Text renders resp as styled terminal output.
func Text(resp pipeline.Response) string {
	var buf bytes.Buffer

	header := fmt.Sprintf("%s (%d)", resp.Kind, resp.Kind.HTTPStatus())
	switch resp.Kind {
	case pipeline.KindOK, pipeline.KindNoContent:
		buf.WriteString(styles.ok.Render("✓ " + header))
	case pipeline.KindInternalError:
		buf.WriteString(styles.err.Render("✗ " + header))
	default:
		buf.WriteString(styles.warn.Render("! " + header))
	}
	buf.WriteString("\n")

	if resp.Reason != "" {
		buf.WriteString(resp.Reason + "\n")
	}

	if len(resp.Errors) > 0 {
		fields := make([]string, 0, len(resp.Errors))
		for field := range resp.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(&buf, "  %s: %s\n", styles.title.Render(field), resp.Errors[field])
		}
	}

	if outline, ok := resp.Body.(*models.CourseOutline); ok {
		buf.WriteString(Outline(outline))
	} else if resp.Body != nil {
		data, err := json.MarshalIndent(resp.Body, "", "  ")
		if err == nil {
			buf.Write(data)
			buf.WriteString("\n")
		}
	}

	if resp.Event != nil {
		buf.WriteString(styles.help.Render(fmt.Sprintf("event %s lesson=%s course=%s", resp.Event.Kind, resp.Event.LessonID, resp.Event.CourseID)))
		buf.WriteString("\n")
	}

	return buf.String()
}

// Outline renders a course with its unit summary.
func Outline(o *models.CourseOutline) string {
	if o == nil || o.Course == nil {
		return ""
	}

	var buf bytes.Buffer
	title := o.Course.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&buf, "%s %s\n", styles.title.Render(title), styles.help.Render(o.Course.ID))
	fmt.Fprintf(&buf, "Owner: %s\n", o.Course.OwnerID)
	if len(o.Course.Collaborator) > 0 {
		fmt.Fprintf(&buf, "Collaborators: %s\n", strings.Join(o.Course.Collaborator, ", "))
	}
	fmt.Fprintf(&buf, "Updated: %s\n", o.Course.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(o.Units) == 0 {
		buf.WriteString(styles.help.Render("No units") + "\n")
		return buf.String()
	}

	buf.WriteString("\nUnits:\n")
	for _, u := range o.Units {
		fmt.Fprintf(&buf, "%3d. %s (%d lessons) %s\n", u.SequenceID, u.Title, u.LessonCount, styles.help.Render(u.ID))
	}
	return buf.String()
}

// Trace renders one phase update of a traced run.
func Trace(u pipeline.PhaseUpdate) string {
	status := styles.ok.Render(u.Status.String())
	if u.Status == pipeline.Failed {
		status = styles.err.Render(u.Status.String())
	}
	return fmt.Sprintf("%s %-8s %s %s", styles.help.Render(u.Operation), u.Phase, status, u.Elapsed)
}
