package nlp

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor pulls a parameter map out of the tokenized and raw forms of an
// utterance for one winning intent.
type Extractor func(tokens []string, text string) map[string]string

func extractorTable() map[string]Extractor {
	return map[string]Extractor{
		"play_music":       extractPlayMusic,
		"control_volume":   extractControlVolume,
		"switch_audio":     extractSwitchAudio,
		"system_control":   extractSystemControl,
		"hardware_control": extractHardwareControl,
		"smart_home":       extractSmartHome,
		"file_operation":   extractFileOperation,
		"navigation":       extractNavigation,
	}
}

var (
	urlPattern  = regexp.MustCompile(`https?://\S+`)
	pathPattern = regexp.MustCompile(`(?:/[\w.\-]+)+|[A-Za-z]:\\[\w.\\\-]+`)
	intPattern  = regexp.MustCompile(`\d+`)
)

// labeledGroup is one named synonym group consulted in declared order, so
// that when an utterance matches more than one group the result is still
// deterministic.
type labeledGroup struct {
	Label string
	Words []string
}

// firstGroupMatch returns the label of the group whose word occurs earliest
// in tokens, scanning tokens left to right so the earliest occurrence in the
// utterance wins, not the earliest declared group.
func firstGroupMatch(tokens []string, groups []labeledGroup) (string, bool) {
	for _, tok := range tokens {
		for _, g := range groups {
			for _, w := range g.Words {
				if tok == w {
					return g.Label, true
				}
			}
		}
	}
	return "", false
}

// firstPhraseMatch returns the label of the first group (in declared order)
// whose phrase appears as a substring of text.
func firstPhraseMatch(text string, groups []labeledGroup) (string, bool) {
	for _, g := range groups {
		for _, phrase := range g.Words {
			if containsPhrase(text, phrase) {
				return g.Label, true
			}
		}
	}
	return "", false
}

// indexOf returns the first index of needle in tokens, or -1.
func indexOf(tokens []string, needle string) int {
	for i, t := range tokens {
		if t == needle {
			return i
		}
	}
	return -1
}

// firstMatch returns the first token in tokens that appears in candidates,
// scanning tokens left to right so the earliest occurrence wins.
func firstMatch(tokens []string, candidates ...string) (string, bool) {
	set := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		set[c] = true
	}
	for _, t := range tokens {
		if set[t] {
			return t, true
		}
	}
	return "", false
}

// containsPhrase reports whether text contains phrase as a case-insensitive
// substring, used for multi-word candidates like "apple music".
func containsPhrase(text, phrase string) bool {
	return strings.Contains(strings.ToLower(text), phrase)
}

var playMusicGenres = []string{"jazz", "rock", "classical", "pop", "electronic", "ambient", "folk", "metal", "blues", "country"}

var playMusicPlatforms = []labeledGroup{
	{Label: "spotify", Words: []string{"spotify"}},
	{Label: "apple music", Words: []string{"apple music"}},
	{Label: "youtube", Words: []string{"youtube"}},
	{Label: "soundcloud", Words: []string{"soundcloud"}},
}

var playMusicMoods = []labeledGroup{
	{Label: "relaxing", Words: []string{"relaxing", "relax", "calm", "chill", "mellow"}},
	{Label: "energetic", Words: []string{"energetic", "energy", "upbeat", "pump", "hype"}},
	{Label: "sad", Words: []string{"sad", "melancholy", "down", "blue"}},
	{Label: "happy", Words: []string{"happy", "cheerful", "joyful"}},
}

func extractPlayMusic(tokens []string, text string) map[string]string {
	params := map[string]string{}

	if i := indexOf(tokens, "by"); i >= 0 && i+1 < len(tokens) {
		params["artist"] = strings.Join(tokens[i+1:], " ")
	}

	if g, ok := firstMatch(tokens, playMusicGenres...); ok {
		params["genre"] = g
	}

	if platform, ok := firstPhraseMatch(text, playMusicPlatforms); ok {
		params["platform"] = platform
	}

	if mood, ok := firstGroupMatch(tokens, playMusicMoods); ok {
		params["mood"] = mood
	}

	if _, hasArtist := params["artist"]; !hasArtist {
		if _, hasGenre := params["genre"]; !hasGenre {
			stopwords := map[string]bool{"play": true, "music": true, "song": true, "some": true}
			var kept []string
			for _, t := range tokens {
				if !stopwords[t] {
					kept = append(kept, t)
				}
			}
			if len(kept) > 0 {
				params["query"] = strings.Join(kept, " ")
			}
		}
	}

	return params
}

var volumeActions = []labeledGroup{
	{Label: "up", Words: []string{"up", "louder", "increase", "raise", "higher"}},
	{Label: "down", Words: []string{"down", "quieter", "decrease", "lower", "softer"}},
	{Label: "mute", Words: []string{"mute", "silence"}},
	{Label: "unmute", Words: []string{"unmute"}},
	{Label: "max", Words: []string{"max", "maximum", "full", "loudest"}},
	{Label: "min", Words: []string{"min", "minimum", "lowest"}},
}

func extractControlVolume(tokens []string, text string) map[string]string {
	params := map[string]string{}

	if action, ok := firstGroupMatch(tokens, volumeActions); ok {
		params["action"] = action
	}

	if m := regexp.MustCompile(`(\d{1,3})\s*%`).FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 0 && n <= 100 {
			params["level"] = m[1]
		}
	} else if m := intPattern.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 0 && n <= 100 {
			params["level"] = m
		}
	}

	return params
}

var switchAudioDevices = []labeledGroup{
	{Label: "headphones", Words: []string{"headphones", "headset", "earbuds"}},
	{Label: "speakers", Words: []string{"speakers", "speaker"}},
	{Label: "bluetooth", Words: []string{"bluetooth"}},
	{Label: "streaming", Words: []string{"rtsp", "stream", "streaming"}},
	{Label: "hdmi", Words: []string{"hdmi", "tv", "television"}},
	{Label: "usb", Words: []string{"usb"}},
}

func extractSwitchAudio(tokens []string, text string) map[string]string {
	if device, ok := firstGroupMatch(tokens, switchAudioDevices); ok {
		return map[string]string{"device": device}
	}
	return map[string]string{}
}

func extractSystemControl(tokens []string, text string) map[string]string {
	actions := []string{"open", "close", "launch", "run", "execute", "kill", "start", "stop"}
	i := -1
	var action string
	for _, a := range actions {
		if idx := indexOf(tokens, a); idx >= 0 {
			i, action = idx, a
			break
		}
	}
	if i < 0 {
		return map[string]string{}
	}
	params := map[string]string{"action": action}
	if i+1 < len(tokens) {
		params["target"] = strings.Join(tokens[i+1:], " ")
	}
	return params
}

func extractHardwareControl(tokens []string, text string) map[string]string {
	params := map[string]string{}

	pinPattern := regexp.MustCompile(`(?:pin|gpio)\s+(\d+)`)
	if m := pinPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		params["pin"] = m[1]
	}

	if a, ok := firstMatch(tokens, "on", "off", "toggle", "read", "write"); ok {
		params["action"] = a
	}

	valuePattern := regexp.MustCompile(`(?:to|value)\s+(\d+)|(\d+)\s*%`)
	if m := valuePattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		if m[1] != "" {
			params["value"] = m[1]
		} else if m[2] != "" {
			params["value"] = m[2]
		}
	}

	return params
}

var smartHomeDeviceTypes = []labeledGroup{
	{Label: "lights", Words: []string{"lights", "light", "lamp"}},
	{Label: "temperature", Words: []string{"temperature", "thermostat", "heat", "ac"}},
	{Label: "security", Words: []string{"security", "alarm", "camera"}},
	{Label: "blinds", Words: []string{"blinds", "curtains", "shades"}},
}

var smartHomeRooms = []string{"bedroom", "kitchen", "living", "bathroom", "office", "garage", "hallway", "dining"}

func extractSmartHome(tokens []string, text string) map[string]string {
	params := map[string]string{}

	if dtype, ok := firstGroupMatch(tokens, smartHomeDeviceTypes); ok {
		params["device_type"] = dtype
	}

	if a, ok := firstMatch(tokens, "on", "off", "dim", "brighten", "lock", "unlock"); ok {
		params["action"] = a
	}

	if loc, ok := firstMatch(tokens, smartHomeRooms...); ok {
		params["location"] = loc
	}

	tempPattern := regexp.MustCompile(`(\d+)\s*(?:degrees|°)`)
	if m := tempPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		params["temperature"] = m[1]
	}

	return params
}

func extractFileOperation(tokens []string, text string) map[string]string {
	params := map[string]string{}

	if u := urlPattern.FindString(text); u != "" {
		params["url"] = u
	}
	if p := pathPattern.FindString(text); p != "" {
		params["path"] = p
	}
	if op, ok := firstMatch(tokens, "download", "upload", "copy", "move", "delete", "create", "save"); ok {
		params["operation"] = op
	}

	return params
}

func extractNavigation(tokens []string, text string) map[string]string {
	params := map[string]string{}

	if i := indexOf(tokens, "to"); i >= 0 && i+1 < len(tokens) {
		params["destination"] = strings.Join(tokens[i+1:], " ")
	}

	if mode, ok := firstMatch(tokens, "driving", "walking", "transit", "cycling"); ok {
		params["mode"] = mode
	}

	return params
}
