package nlp

import "testing"

func TestExtractPlayMusicArtistAndGenre(t *testing.T) {
	params := extractPlayMusic(tokenize("play jazz by miles davis"), "play jazz by miles davis")
	if params["genre"] != "jazz" {
		t.Errorf("genre = %q, want jazz", params["genre"])
	}
	if params["artist"] != "miles davis" {
		t.Errorf("artist = %q, want miles davis", params["artist"])
	}
}

func TestExtractPlayMusicFallsBackToQuery(t *testing.T) {
	params := extractPlayMusic(tokenize("play some bohemian rhapsody"), "play some bohemian rhapsody")
	if params["query"] != "bohemian rhapsody" {
		t.Errorf("query = %q, want bohemian rhapsody", params["query"])
	}
}

func TestExtractControlVolumeLevel(t *testing.T) {
	params := extractControlVolume(tokenize("set volume to 42"), "set volume to 42")
	if params["level"] != "42" {
		t.Errorf("level = %q, want 42", params["level"])
	}
}

func TestExtractSwitchAudioDevice(t *testing.T) {
	params := extractSwitchAudio(tokenize("switch to bluetooth speaker"), "switch to bluetooth speaker")
	if params["device"] != "bluetooth" {
		t.Errorf("device = %q, want bluetooth", params["device"])
	}
}

func TestExtractSystemControlTarget(t *testing.T) {
	params := extractSystemControl(tokenize("launch the web browser"), "launch the web browser")
	if params["action"] != "launch" {
		t.Errorf("action = %q, want launch", params["action"])
	}
	if params["target"] != "the web browser" {
		t.Errorf("target = %q, want 'the web browser'", params["target"])
	}
}

func TestExtractSmartHomeTemperature(t *testing.T) {
	params := extractSmartHome(tokenize("set the bedroom to 72 degrees"), "set the bedroom to 72 degrees")
	if params["location"] != "bedroom" {
		t.Errorf("location = %q, want bedroom", params["location"])
	}
	if params["temperature"] != "72" {
		t.Errorf("temperature = %q, want 72", params["temperature"])
	}
}

func TestExtractNavigationDestinationAndMode(t *testing.T) {
	params := extractNavigation(tokenize("navigate to the airport walking"), "navigate to the airport walking")
	if params["destination"] != "the airport walking" {
		t.Errorf("destination = %q", params["destination"])
	}
	if params["mode"] != "walking" {
		t.Errorf("mode = %q, want walking", params["mode"])
	}
}

func TestExtractFileOperationURL(t *testing.T) {
	params := extractFileOperation(
		tokenize("download https://example.com/file.zip"),
		"download https://example.com/file.zip",
	)
	if params["url"] != "https://example.com/file.zip" {
		t.Errorf("url = %q", params["url"])
	}
	if params["operation"] != "download" {
		t.Errorf("operation = %q, want download", params["operation"])
	}
}
