package pdf

import (
	"testing"

	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/soaerr"
)

func TestNewTemplateRendererMissingAssets(t *testing.T) {
	_, err := NewTemplateRenderer(config.RenderConfig{
		TemplatePath:      "testdata/does-not-exist.pdf",
		BodyFontPath:      "testdata/does-not-exist.ttf",
		SignatureFontPath: "testdata/does-not-exist.ttf",
	})
	if err == nil {
		t.Fatal("expected error for missing assets")
	}
	if !soaerr.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
