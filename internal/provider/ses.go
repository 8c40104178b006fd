package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the part of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends email as raw MIME through Amazon SES v2. Retries are handled by
// the SDK's own retryer.
type SES struct {
	api              sesAPI
	configurationSet string
}

// NewSES loads the default AWS credential chain for region.
func NewSES(ctx context.Context, region, configurationSet string, maxRetries int) (*SES, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(max(maxRetries, 0)+1),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SES{api: sesv2.NewFromConfig(cfg), configurationSet: configurationSet}, nil
}

func (s *SES) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	raw, err := buildMIME(env)
	if err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatAddress(env.FromName, env.FromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{env.ToAddress}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}
	if s.configurationSet != "" {
		in.ConfigurationSetName = aws.String(s.configurationSet)
	}
	if env.GroupUUID != "" {
		in.EmailTags = []types.MessageTag{{Name: aws.String("group"), Value: aws.String(env.GroupUUID)}}
	}

	out, err := s.api.SendEmail(ctx, in)
	if err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}
	return &Receipt{ExternalID: aws.ToString(out.MessageId)}, nil
}

func formatAddress(name, address string) string {
	return (&mail.Address{Name: name, Address: address}).String()
}

// buildMIME renders env as a multipart/mixed message with an HTML part and
// one base64 part per attachment.
func buildMIME(env *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := map[string]string{
		"From":         formatAddress(env.FromName, env.FromAddress),
		"To":           formatAddress(env.ToName, env.ToAddress),
		"Subject":      mime.QEncoding.Encode("utf-8", env.Subject),
		"MIME-Version": "1.0",
		"Content-Type": "multipart/mixed; boundary=" + w.Boundary(),
	}
	for k, v := range env.Headers {
		if _, reserved := header[textproto.CanonicalMIMEHeaderKey(k)]; !reserved {
			header[textproto.CanonicalMIMEHeaderKey(k)] = v
		}
	}
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, header[k])
	}
	buf.WriteString("\r\n")

	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(env.HTML)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range env.Attachments {
		ct := a.MimeType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": a.Name})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.StdEncoding.EncodeToString(a.Content)
		for len(enc) > 76 {
			if _, err := part.Write([]byte(enc[:76] + "\r\n")); err != nil {
				return nil, err
			}
			enc = enc[76:]
		}
		if _, err := part.Write([]byte(enc)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ Provider = (*SES)(nil)
