package blog

// TagsHandler collects the tags of every Tagged config type.
type TagsHandler struct{}
