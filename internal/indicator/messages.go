package indicator

import (
	"fmt"
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	scanning  string
	analyzing string
	errorText string
	feeling   string
	noSongs   string
	oneSong   string
	manySongs string
}

func (m messages) result(emotion string, songs int) string {
	emotion = strings.TrimSpace(emotion)
	var tail string
	switch songs {
	case 0:
		tail = m.noSongs
	case 1:
		tail = m.oneSong
	default:
		tail = fmt.Sprintf(m.manySongs, songs)
	}
	if emotion == "" {
		return tail
	}
	return fmt.Sprintf(m.feeling, emotion) + " · " + tail
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			scanning:  "Look at the camera…",
			analyzing: "Reading your mood…",
			errorText: "Mood analysis failed",
			feeling:   "Feeling %s",
			noSongs:   "no songs found",
			oneSong:   "1 song",
			manySongs: "%d songs",
		}
	}
}
