package nlp

// IntentDef is one row of the intent table: a keyword-weighted classifier
// rule plus an optional context-boost. Kept as data so the catalog can grow
// without touching the scoring loop.
type IntentDef struct {
	Name            string
	Keywords        []string
	Weight          float64
	RequiresContext bool
	ContextBoost    *ContextBoost
}

// ContextBoost adds to an intent's score when a session context is present
// and either the session's last intent is in LastIntents or the user's
// location matches one of Locations.
type ContextBoost struct {
	LastIntents []string
	Locations   []string
	Boost       float64
}

// intentTable is the fixed catalog of classifiable intents.
var intentTable = []IntentDef{
	{
		Name:     "play_music",
		Keywords: []string{"play", "music", "song", "listen", "track", "album", "playlist", "artist"},
		Weight:   1.0,
	},
	{
		Name:     "control_volume",
		Keywords: []string{"volume", "louder", "quieter", "mute", "unmute", "loud", "quiet", "sound"},
		Weight:   1.0,
		ContextBoost: &ContextBoost{
			LastIntents: []string{"play_music"},
			Boost:       0.5,
		},
	},
	{
		Name:     "switch_audio",
		Keywords: []string{"switch", "output", "headphones", "speakers", "bluetooth", "hdmi", "audio", "device"},
		Weight:   0.9,
	},
	{
		Name:     "system_control",
		Keywords: []string{"open", "close", "launch", "run", "execute", "kill", "start", "stop", "quit", "application", "app"},
		Weight:   0.9,
	},
	{
		Name:     "file_operation",
		Keywords: []string{"download", "upload", "copy", "move", "delete", "create", "save", "file"},
		Weight:   0.9,
	},
	{
		Name:     "hardware_control",
		Keywords: []string{"gpio", "pin", "relay", "sensor", "hardware", "toggle", "circuit"},
		Weight:   1.1,
	},
	{
		Name:     "smart_home",
		Keywords: []string{"lights", "light", "thermostat", "temperature", "lock", "unlock", "blinds", "dim", "brighten"},
		Weight:   1.0,
		ContextBoost: &ContextBoost{
			Locations: []string{"home"},
			Boost:     0.3,
		},
	},
	{
		Name:     "communication",
		Keywords: []string{"message", "text", "call", "email", "send", "reply", "notify"},
		Weight:   0.9,
	},
	{
		Name:     "navigation",
		Keywords: []string{"navigate", "directions", "drive", "walk", "route", "destination", "map"},
		Weight:   0.9,
	},
	{
		Name:     "question_answer",
		Keywords: []string{"what", "when", "where", "who", "why", "how", "tell", "explain"},
		Weight:   0.6,
	},
	{
		Name:     "follow_up",
		Keywords: []string{"yes", "no", "that", "it", "again", "more", "louder", "quieter", "stop", "cancel"},
		Weight:   0.5,
	},
}
