package dispatch

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/auroilion/roilion/pipeline"
	"github.com/auroilion/roilion/validate"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"github.com/tdewolff/minify"
	"github.com/tdewolff/minify/html"
)

var templates = packr.NewBox("../templates")

const receivedAtLayout = "02/01/2006 15:04 MST"

// Message is a rendered email ready for a provider
type Message struct {
	ID       string
	FromName string
	From     string
	To       string
	ReplyTo  string
	Subject  string
	Text     string
	HTML     string
}

// Renderer turns envelopes into messages
type Renderer struct {
	html     *htmltemplate.Template
	text     *texttemplate.Template
	minifier *minify.M
	addr     Addresses
}

// Addresses are the fixed ends of every contact email
type Addresses struct {
	// FromName is the display name of the sending address
	FromName string
	From     string
	To       string
}

// htmlFields are escaped up front; the template inserts them verbatim
type htmlFields struct {
	Subject    string
	FromName   htmltemplate.HTML
	ReplyTo    htmltemplate.HTML
	Message    htmltemplate.HTML
	ReceivedAt string
	ID         string
}

type textFields struct {
	FromName   string
	ReplyTo    string
	Message    string
	ReceivedAt string
	ID         string
}

// NewRenderer parses the boxed templates
func NewRenderer(addr Addresses) (*Renderer, error) {
	if addr.To == "" {
		return nil, errors.Wrap(ErrNotConfigured, "recipient address is required")
	}
	if addr.From == "" {
		addr.From = addr.To
	}
	if addr.FromName == "" {
		addr.FromName = DefaultFromName
	}

	h, err := templates.FindString("contact.html")
	if err != nil {
		return nil, errors.Wrap(err, "Renderer: failed to find html template")
	}

	ht, err := htmltemplate.New("contact.html").Parse(h)
	if err != nil {
		return nil, errors.Wrap(err, "Renderer: failed to parse html template")
	}

	txt, err := templates.FindString("contact.txt")
	if err != nil {
		return nil, errors.Wrap(err, "Renderer: failed to find text template")
	}

	tt, err := texttemplate.New("contact.txt").Parse(txt)
	if err != nil {
		return nil, errors.Wrap(err, "Renderer: failed to parse text template")
	}

	m := minify.New()
	m.AddFunc("text/html", html.Minify)

	return &Renderer{html: ht, text: tt, minifier: m, addr: addr}, nil
}

// Subject returns the subject line for a message from name
func Subject(name string) string {
	return "Nouveau message de " + name
}

// Render builds the message for e
func (r *Renderer) Render(e pipeline.Envelope) (Message, error) {
	received := e.ReceivedAt.Format(receivedAtLayout)
	subject := Subject(e.FromName)

	var hb bytes.Buffer
	err := r.html.Execute(&hb, htmlFields{
		Subject:    subject,
		FromName:   htmltemplate.HTML(validate.Escape(e.FromName)),
		ReplyTo:    htmltemplate.HTML(validate.Escape(e.ReplyTo)),
		Message:    htmltemplate.HTML(newlinesToBreaks(validate.Escape(e.Message))),
		ReceivedAt: received,
		ID:         e.ID,
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "Renderer: failed to execute html template")
	}

	minified, err := r.minifier.String("text/html", hb.String())
	if err != nil {
		return Message{}, errors.Wrap(err, "Renderer: failed to minify html")
	}

	var tb bytes.Buffer
	err = r.text.Execute(&tb, textFields{
		FromName:   e.FromName,
		ReplyTo:    e.ReplyTo,
		Message:    validate.Sanitize(e.Message),
		ReceivedAt: received,
		ID:         e.ID,
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "Renderer: failed to execute text template")
	}

	return Message{
		ID:       e.ID,
		FromName: r.addr.FromName,
		From:     r.addr.From,
		To:       r.addr.To,
		ReplyTo:  e.ReplyTo,
		Subject:  subject,
		Text:     tb.String(),
		HTML:     minified,
	}, nil
}

func newlinesToBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}
