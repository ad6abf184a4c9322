// Package extractor turns raw RFC 5322 / MIME messages into core.EmailRecord
// values: sender, subject, a plain-text body, the links found in HTML parts
// and the number of attachments.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/utils"
	"go.uber.org/zap"
)

var (
	// ErrRead is returned when the message source cannot be opened or read
	ErrRead = errors.New("failed to read message")
	// ErrParse is returned when the input is not a valid message structure
	ErrParse = errors.New("failed to parse message")
)

// Extractor builds EmailRecords from raw messages. It holds no per-call
// state and is safe for concurrent use.
type Extractor struct {
	logger       *zap.Logger
	text         *utils.TextProcessor
	stripScripts bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithScriptStripping removes <script> and <style> blocks, content included,
// before HTML parts are converted to text.
func WithScriptStripping() Option {
	return func(e *Extractor) {
		e.stripScripts = true
	}
}

// WithTextProcessor overrides the text processor used for body shaping
func WithTextProcessor(tp *utils.TextProcessor) Option {
	return func(e *Extractor) {
		e.text = tp
	}
}

// New creates a new Extractor
func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.text == nil {
		e.text = utils.NewTextProcessor(logger)
	}
	return e
}

// HTMLToText converts markup to text using the extractor's script handling
func (e *Extractor) HTMLToText(markup string) string {
	return htmlToText(markup, e.stripScripts)
}

// ExtractFile reads and extracts the message stored at path
func (e *Extractor) ExtractFile(path string) (*core.EmailRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	return e.Extract(f)
}

// Extract reads the whole message from r and extracts it
func (e *Extractor) Extract(r io.Reader) (*core.EmailRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return e.ExtractBytes(raw)
}

// ExtractBytes extracts a message held in memory
func (e *Extractor) ExtractBytes(raw []byte) (*core.EmailRecord, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err != nil {
		e.logger.Debug("Reading message with unknown charset or encoding", zap.Error(err))
	}

	header := mail.Header{Header: entity.Header}
	record := &core.EmailRecord{
		Sender:  e.headerText(header, "From"),
		Subject: e.headerText(header, "Subject"),
	}

	var acc accumulator
	if err := e.walk(entity, &acc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	body := acc.plain.String()
	if body == "" && acc.html.Len() > 0 {
		body = e.HTMLToText(acc.html.String())
	}

	record.Body = e.text.ProcessText(body, core.MaxBodyLength)
	record.Links = dedupeLinks(acc.links)
	record.AttachmentCount = acc.attachments

	e.logger.Debug("Extracted email record",
		zap.String("sender", record.SenderOrEmpty()),
		zap.Int("body_length", utf8.RuneCountInString(record.Body)),
		zap.Int("links", len(record.Links)),
		zap.Int("attachments", record.AttachmentCount))

	return record, nil
}

// accumulator collects content across every part of a message, including
// the parts of attached messages
type accumulator struct {
	plain       strings.Builder
	html        strings.Builder
	links       []string
	attachments int
}

// walk visits every part of entity in document order. Attached
// message/rfc822 parts are counted like any other named part and then
// walked in place.
func (e *Extractor) walk(entity *message.Entity, acc *accumulator) error {
	return entity.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil {
			if !isRecoverable(err) {
				return err
			}
			e.logger.Debug("Reading part with unknown charset or encoding",
				zap.Ints("path", path),
				zap.Error(err))
		}

		switch contentType := partContentType(part); {
		case contentType == "text/plain":
			text, err := io.ReadAll(part.Body)
			if err != nil {
				return err
			}
			acc.plain.Write(text)
		case contentType == "text/html":
			markup, err := io.ReadAll(part.Body)
			if err != nil {
				return err
			}
			acc.html.Write(markup)
			acc.links = append(acc.links, findLinks(string(markup))...)
		case strings.HasPrefix(contentType, "multipart/"):
			return nil
		case contentType == "message/rfc822":
			countAttachment(part, acc)
			return e.walkEmbedded(path, part, acc)
		default:
			countAttachment(part, acc)
		}
		return nil
	})
}

// walkEmbedded parses an attached message and walks it with the same
// accumulator. An attachment that is not a readable message is left opaque.
func (e *Extractor) walkEmbedded(path []int, part *message.Entity, acc *accumulator) error {
	inner, err := message.Read(part.Body)
	if err != nil && !isRecoverable(err) {
		e.logger.Debug("Skipping unparsable attached message",
			zap.Ints("path", path),
			zap.Error(err))
		return nil
	}
	return e.walk(inner, acc)
}

func countAttachment(part *message.Entity, acc *accumulator) {
	attachment := mail.AttachmentHeader{Header: part.Header}
	if name, _ := attachment.Filename(); name != "" {
		acc.attachments++
	}
}

// headerText returns the decoded header value, or nil when the header is absent
func (e *Extractor) headerText(h mail.Header, key string) *string {
	if !h.Has(key) {
		return nil
	}
	value, err := h.Text(key)
	if err != nil {
		e.logger.Debug("Failed to decode header, using raw value",
			zap.String("header", key),
			zap.Error(err))
		value = h.Get(key)
	}
	return &value
}

// partContentType returns the lowercased media type of a part. Parts with a
// missing or unparsable Content-Type are treated as text/plain.
func partContentType(part *message.Entity) string {
	if part.Header.Get("Content-Type") == "" {
		return "text/plain"
	}
	mediaType, _, err := part.Header.ContentType()
	if err != nil || mediaType == "" {
		return "text/plain"
	}
	return strings.ToLower(mediaType)
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
