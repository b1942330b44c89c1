package voices

import "testing"

func cloudVoice(id, lang string) Voice {
	return Voice{ID: id, Provider: Cloud, Language: lang, DisplayName: id}
}

func deviceVoice(id, lang string, local bool) Voice {
	return Voice{ID: id, Provider: OnDevice, Language: lang, DisplayName: id, IsLocal: local}
}

func TestRefreshReplacesWholesale(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{cloudVoice("a", "en-US"), cloudVoice("b", "en-GB")})
	c.Refresh(Cloud, []Voice{cloudVoice("c", "fr-FR")})

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after wholesale replace", c.Len())
	}
	if _, ok := c.ByID("a"); ok {
		t.Error("stale voice survived a refresh")
	}
	if _, ok := c.ByID("c"); !ok {
		t.Error("refreshed voice not found")
	}
}

func TestRefreshDoesNotTouchOtherProviders(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{cloudVoice("cloud-en", "en-US")})
	c.Refresh(OnDevice, []Voice{deviceVoice("dev-en", "en-US", true)})

	c.Refresh(Cloud, nil)

	if _, ok := c.ByID("dev-en"); !ok {
		t.Error("on-device voice lost when cloud list was replaced")
	}
}

func TestBestForPrefersCloud(t *testing.T) {
	c := NewCatalog()
	c.Refresh(OnDevice, []Voice{deviceVoice("dev-en", "en-US", true)})
	c.Refresh(Cloud, []Voice{cloudVoice("cloud-en", "en-US")})

	v, ok := c.BestFor("en-US")
	if !ok {
		t.Fatal("BestFor returned no coverage")
	}
	if v.ID != "cloud-en" {
		t.Errorf("BestFor = %q, want cloud voice", v.ID)
	}
}

func TestBestForFallsBackToDevicePrefix(t *testing.T) {
	c := NewCatalog()
	c.Refresh(OnDevice, []Voice{
		deviceVoice("dev-de-remote", "de-DE", false),
		deviceVoice("dev-de-local", "de-AT", true),
	})

	v, ok := c.BestFor("de")
	if !ok {
		t.Fatal("BestFor returned no coverage")
	}
	if v.ID != "dev-de-local" {
		t.Errorf("BestFor = %q, want the local voice preferred", v.ID)
	}
}

func TestBestForNoCoverage(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{cloudVoice("cloud-en", "en-US")})

	if _, ok := c.BestFor("th"); ok {
		t.Error("BestFor found a voice for an uncovered language")
	}
}

func TestBestForMemoizesSessionChoice(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{cloudVoice("first", "es-ES"), cloudVoice("second", "es-MX")})

	v1, _ := c.BestFor("es")
	v2, _ := c.BestFor("es-AR")
	if v1.ID != v2.ID {
		t.Errorf("session selection not reused: %q then %q", v1.ID, v2.ID)
	}
}

func TestBestForDropsMemoAfterRefresh(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{cloudVoice("old", "es-ES")})
	if _, ok := c.BestFor("es"); !ok {
		t.Fatal("expected coverage")
	}

	c.Refresh(Cloud, []Voice{cloudVoice("new", "es-ES")})
	v, ok := c.BestFor("es")
	if !ok {
		t.Fatal("expected coverage after refresh")
	}
	if v.ID != "new" {
		t.Errorf("BestFor = %q, want the refreshed voice", v.ID)
	}
}

func TestSearch(t *testing.T) {
	c := NewCatalog()
	c.Refresh(Cloud, []Voice{
		{ID: "aria", Provider: Cloud, Language: "en-US", DisplayName: "Aria Neural"},
		{ID: "luna", Provider: Cloud, Language: "fr-FR", DisplayName: "Luna Neural"},
	})

	got := c.Search("aria")
	if len(got) != 1 || got[0].ID != "aria" {
		t.Errorf("Search(aria) = %v, want the aria voice only", got)
	}
	if n := len(c.Search("")); n != 2 {
		t.Errorf("empty query returned %d voices, want all 2", n)
	}
}
