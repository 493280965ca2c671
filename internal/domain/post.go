package domain

import "time"

// PostStatus tracks a generated social post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
)

// Post is the launch post produced by a workflow run.
type Post struct {
	ID             string     `json:"id"`
	PropertyID     string     `json:"property_id,omitempty"`
	Content        string     `json:"content"`
	ImagePath      string     `json:"image_path,omitempty"`
	Status         PostStatus `json:"status"`
	PublishMessage string     `json:"publish_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// NewPost creates a draft post.
func NewPost(propertyID, content, imagePath string) *Post {
	return &Post{
		PropertyID: propertyID,
		Content:    content,
		ImagePath:  imagePath,
		Status:     PostDraft,
		CreatedAt:  time.Now(),
	}
}

// IsPublished returns true once the post went out.
func (p *Post) IsPublished() bool {
	return p.Status == PostPublished
}
