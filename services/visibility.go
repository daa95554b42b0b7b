package services

import "github.com/cppla/circlefeed/models"

// IsVisible reports whether viewer may see a post addressed to audience.
// Public posts are visible to everyone. Otherwise the viewer must have been
// placed in at least one of the author's circles, and for a named circle list
// in one of the named circles. The lookup goes through the viewer's own
// followers map.
func IsVisible(viewer *models.User, a models.Audience) bool {
	if isSentinel(a.Circles, models.CirclesPublic) {
		return true
	}
	viewerCircles := viewer.CirclesOf(a.Author)
	if len(viewerCircles) == 0 {
		return false
	}
	if isSentinel(a.Circles, models.CirclesAll) {
		return true
	}
	for _, c := range a.Circles {
		for _, vc := range viewerCircles {
			if c == vc {
				return true
			}
		}
	}
	return false
}

// VisibleIncoming governs the "posts directed at me" view: everything except
// posts by authors the viewer blocked.
func VisibleIncoming(viewer *models.User, a models.Audience) bool {
	return !viewer.HasBlocked(a.Author)
}

func isSentinel(circles []string, sentinel string) bool {
	return len(circles) == 1 && circles[0] == sentinel
}
