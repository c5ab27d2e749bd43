package realtime

import "strings"

// Topics come in three families: a single public topic for the tracked
// entity list, one topic per running import, and one private topic per user.
const (
	TopicProjects = "projects"

	importTopicPrefix = "import:"
	userTopicPrefix   = "user:"
)

func ImportTopic(importId string) string {
	return importTopicPrefix + importId
}

func UserTopic(userId string) string {
	return userTopicPrefix + userId
}

// TopicOwner returns the user id a private topic belongs to.
func TopicOwner(topic string) (string, bool) {
	owner, ok := strings.CutPrefix(topic, userTopicPrefix)
	if !ok || owner == "" {
		return "", false
	}

	return owner, true
}

func IsImportTopic(topic string) bool {
	return strings.HasPrefix(topic, importTopicPrefix) && len(topic) > len(importTopicPrefix)
}
