package filter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/extractor"
	"go.uber.org/zap"
)

// AnalysisErrorHeader carries the failure reason when analysis could not complete
const AnalysisErrorHeader = "X-Phishing-Analysis-Error"

const maxReasonHeaderLength = 500

// Header status values
const (
	StatusPhishing = "phishing"
	StatusClean    = "clean"
	StatusUnknown  = "unknown"
	StatusError    = "error"
)

// MessageProcessor extracts and scores raw messages
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, r io.Reader) (*core.EmailRecord, *core.AnalysisResult, error)
	IsPhishing(result *core.AnalysisResult) bool
}

// PostfixFilter implements a Postfix content filter
type PostfixFilter struct {
	service         MessageProcessor
	logger          *zap.Logger
	listenAddr      string
	server          *smtp.Server
	blockPhishing   bool
	headers         config.HeaderNames
	postfixAddr     string
	postfixPort     int
	postfixEnabled  bool
	subjectPrefix   string
	modifySubject   bool
	maxMessageBytes int64
	timeout         time.Duration

	// deliver hands the rewritten message on; defaults to sendToPostfix
	deliver func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service MessageProcessor,
	logger *zap.Logger,
	cfg config.ServerConfig,
	timeout time.Duration,
) *PostfixFilter {
	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" && cfg.ModifySubject {
		subjectPrefix = "[**PHISHING**] "
	}
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 30 * 1024 * 1024
	}

	f := &PostfixFilter{
		service:         service,
		logger:          logger,
		listenAddr:      cfg.ListenAddress,
		blockPhishing:   cfg.BlockPhishing,
		headers:         cfg.Headers,
		postfixAddr:     cfg.PostfixAddress,
		postfixPort:     cfg.PostfixPort,
		postfixEnabled:  cfg.PostfixEnabled,
		subjectPrefix:   subjectPrefix,
		modifySubject:   cfg.ModifySubject,
		maxMessageBytes: maxBytes,
		timeout:         timeout,
	}
	f.deliver = f.sendToPostfix
	return f
}

// Start starts the SMTP listener in the background
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.maxMessageBytes
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}

	f.logger.Info("Postfix filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// filterMessage analyzes raw, then either rejects it or delivers it with
// verdict headers added
func (f *PostfixFilter) filterMessage(sender string, recipients []string, raw []byte) error {
	ctx := context.Background()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	record, result, err := f.service.ProcessMessage(ctx, bytes.NewReader(raw))
	if record == nil {
		f.logger.Error("Failed to extract message content",
			zap.String("sender", sender),
			zap.Error(err))
		if errors.Is(err, extractor.ErrParse) {
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 6, 0},
				Message:      "Malformed message",
			}
		}
		return err
	}
	analysisErr := err

	from := record.SenderOrEmpty()
	if from == "" {
		from = sender
	}

	phishing := analysisErr == nil && f.service.IsPhishing(result)
	if phishing && f.blockPhishing {
		f.logger.Info("Rejecting phishing email",
			zap.String("from", from),
			zap.Int("score", result.Verdict.Score),
			zap.String("reason", result.Verdict.Reasoning),
			zap.String("model", result.ModelUsed),
			zap.String("processing_id", result.ProcessingID))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as phishing (score: %d)", result.Verdict.Score),
		}
	}

	modified, err := f.rewriteMessage(raw, result, phishing, analysisErr)
	if err != nil {
		f.logger.Error("Failed to add verdict headers", zap.Error(err))
		return err
	}

	if f.postfixEnabled {
		if err := f.deliver(sender, recipients, modified); err != nil {
			f.logger.Error("Failed to send email back to Postfix",
				zap.Error(err),
				zap.String("sender", sender))
			return err
		}
	} else {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
	}

	fields := []zap.Field{
		zap.String("from", from),
		zap.Bool("is_phishing", phishing),
		zap.Int("links", len(record.Links)),
		zap.Int("attachments", record.AttachmentCount),
	}
	if result != nil {
		fields = append(fields,
			zap.String("kind", result.Kind.String()),
			zap.String("model", result.ModelUsed),
			zap.String("processing_id", result.ProcessingID))
	}
	f.logger.Info("Processed email", fields...)

	return nil
}

// rewriteMessage prepends the verdict headers to raw, optionally prefixes the
// subject, and leaves the body untouched
func (f *PostfixFilter) rewriteMessage(raw []byte, result *core.AnalysisResult, phishing bool, analysisErr error) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	header := mail.Header{Header: message.Header{Header: h}}
	for _, name := range []string{f.headers.Status, f.headers.Score, f.headers.Classification, f.headers.Reason, AnalysisErrorHeader} {
		if name != "" {
			header.Del(name)
		}
	}

	switch {
	case analysisErr != nil:
		header.Set(f.headers.Status, StatusError)
		header.Set(AnalysisErrorHeader, headerSafe(analysisErr.Error()))
	case !result.IsStructured():
		header.Set(f.headers.Status, StatusUnknown)
	default:
		status := StatusClean
		if phishing {
			status = StatusPhishing
		}
		header.Set(f.headers.Status, status)
		header.Set(f.headers.Score, strconv.Itoa(result.Verdict.Score))
		header.Set(f.headers.Classification, string(result.Verdict.Classification))
		if result.Verdict.Reasoning != "" {
			header.Set(f.headers.Reason, headerSafe(result.Verdict.Reasoning))
		}
	}

	if phishing && f.modifySubject && f.subjectPrefix != "" {
		subject, err := header.Subject()
		if err != nil {
			subject = header.Get("Subject")
		}
		if !strings.HasPrefix(subject, f.subjectPrefix) {
			header.SetSubject(f.subjectPrefix + subject)
		}
	}

	var out bytes.Buffer
	if err := textproto.WriteHeader(&out, header.Header.Header); err != nil {
		return nil, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&out, br); err != nil {
		return nil, fmt.Errorf("failed to copy message body: %w", err)
	}
	return out.Bytes(), nil
}

// headerSafe folds text onto one line and bounds its length
func headerSafe(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxReasonHeaderLength {
		s = string(r[:maxReasonHeaderLength])
	}
	return s
}

// sendToPostfix sends the processed email back to Postfix on the configured port using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := net.JoinHostPort(f.postfixAddr, strconv.Itoa(f.postfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// already accepted by Postfix
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the email data
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.filterMessage(s.sender, s.recipients, raw)
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
