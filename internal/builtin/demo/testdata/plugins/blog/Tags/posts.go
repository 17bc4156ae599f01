package blog

// PostTags tags the blog posts.
type PostTags struct{}
