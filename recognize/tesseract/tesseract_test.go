package tesseract

import (
	"testing"

	"github.com/hazyhaar/docsight/recognize"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("TESSDATA_PREFIX", "/opt/tessdata")
	var c Config
	c.defaults()
	if len(c.Languages) != 1 || c.Languages[0] != "eng" {
		t.Errorf("languages = %v", c.Languages)
	}
	if c.TessdataPrefix != "/opt/tessdata" {
		t.Errorf("prefix = %q", c.TessdataPrefix)
	}
	if c.PageSegMode != 3 {
		t.Errorf("psm = %d", c.PageSegMode)
	}
	if c.MaxClients <= 0 {
		t.Errorf("max clients = %d", c.MaxClients)
	}
}

func TestLanguagesFor(t *testing.T) {
	cfg := Config{Languages: []string{"eng"}}
	if got := languagesFor(cfg, recognize.Options{}); got[0] != "eng" {
		t.Errorf("fallback = %v", got)
	}
	if got := languagesFor(cfg, recognize.Options{Languages: []string{"fra", "deu"}}); len(got) != 2 || got[0] != "fra" {
		t.Errorf("override = %v", got)
	}
}
