// Package pdf overlays finalized record data onto the fixed regulatory
// form template.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/signintech/gopdf"

	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/models"
	"github.com/soasign/backend/internal/soaerr"
)

const (
	fontBody      = "body"
	fontSignature = "signature"
)

// TemplateRenderer imports the template page and draws text overlays at
// the layout anchors. Safe for concurrent use: each Render builds its own
// gopdf document.
type TemplateRenderer struct {
	cfg config.RenderConfig
}

// NewTemplateRenderer validates the template and font assets up front.
func NewTemplateRenderer(cfg config.RenderConfig) (*TemplateRenderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, soaerr.Configuration("render assets missing", err)
	}
	return &TemplateRenderer{cfg: cfg}, nil
}

// Render produces the signed document for a finalized record.
func (r *TemplateRenderer) Render(rec *models.SOARecord) (out []byte, err error) {
	// gofpdi reports unreadable or malformed templates by panicking.
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = soaerr.Configuration("template import failed", fmt.Errorf("%v", p))
		}
	}()

	doc := &gopdf.GoPdf{}
	doc.Start(gopdf.Config{PageSize: *gopdf.PageSizeLetter, Unit: gopdf.UnitPT})

	if ferr := doc.AddTTFFont(fontBody, r.cfg.BodyFontPath); ferr != nil {
		return nil, soaerr.Configuration("load body font", ferr)
	}
	if ferr := doc.AddTTFFont(fontSignature, r.cfg.SignatureFontPath); ferr != nil {
		return nil, soaerr.Configuration("load signature font", ferr)
	}

	doc.AddPage()
	tpl := doc.ImportPage(r.cfg.TemplatePath, 1, "/MediaBox")
	doc.UseImportedTemplate(tpl, 0, 0, gopdf.PageSizeLetter.W, gopdf.PageSizeLetter.H)

	if err := r.drawOverlays(doc, rec); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, werr := doc.WriteTo(&buf); werr != nil {
		return nil, fmt.Errorf("serialize document: %w", werr)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) drawOverlays(doc *gopdf.GoPdf, rec *models.SOARecord) error {
	draw := func(family string, size float64, at anchor, text string) error {
		if text == "" {
			return nil
		}
		if err := doc.SetFont(family, "", size); err != nil {
			return fmt.Errorf("set font %s: %w", family, err)
		}
		doc.SetXY(at.x, at.y)
		if err := doc.Cell(nil, text); err != nil {
			return fmt.Errorf("draw text at (%.0f, %.0f): %w", at.x, at.y, err)
		}
		return nil
	}

	for _, product := range rec.ProductsSelected {
		at, ok := productAnchors[product]
		if !ok {
			continue
		}
		if err := draw(fontBody, markSize, at, checkboxMark); err != nil {
			return err
		}
	}

	if err := draw(fontSignature, signatureSize, anchorClientSignature, deref(rec.ClientTypedSignature)); err != nil {
		return err
	}
	if rec.ClientSignedAt != nil {
		if err := draw(fontBody, bodySize, anchorClientSignDate, formatTimestamp(*rec.ClientSignedAt)); err != nil {
			return err
		}
	}

	if rec.SignerType != nil && *rec.SignerType == models.SignerTypeRepresentative {
		if err := draw(fontBody, bodySize, anchorRepName, deref(rec.RepName)); err != nil {
			return err
		}
		if err := draw(fontBody, bodySize, anchorRepRelationship, deref(rec.RepRelationship)); err != nil {
			return err
		}
	}

	fields := []struct {
		at   anchor
		text string
	}{
		{anchorBeneficiaryName, rec.BeneficiaryName},
		{anchorBeneficiaryPhone, deref(rec.BeneficiaryPhone)},
		{anchorBeneficiaryAddress, deref(rec.BeneficiaryAddress)},
		{anchorInitialContact, deref(rec.InitialContactMethod)},
		{anchorAgentName, rec.AgentName},
		{anchorAgentPhone, deref(rec.AgentPhone)},
		{anchorAgentNPN, deref(rec.AgentNPN)},
		{anchorAgentSignDate, agentSignDate(rec)},
	}
	for _, f := range fields {
		if err := draw(fontBody, bodySize, f.at, f.text); err != nil {
			return err
		}
	}

	return draw(fontSignature, signatureSize, anchorAgentSignature, agentSignatureText(rec))
}
