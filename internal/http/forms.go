package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// The four form shapes. Field names match the template input names; every
// field is required and nothing more is checked server-side.

type RegisterForm struct {
	Name     string `form:"name" binding:"required"`
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type LoginForm struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type PostForm struct {
	Title    string `form:"title" binding:"required"`
	Subtitle string `form:"subtitle" binding:"required"`
	ImageURL string `form:"img_url" binding:"required"`
	Body     string `form:"body" binding:"required"`
}

type CommentForm struct {
	Body string `form:"comment" binding:"required"`
}

// fieldErrors turns a binding error into per-field messages for re-rendering
// the submitted form.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Field() + " is required."
		}
		return out
	}
	out["Form"] = "Invalid form submission."
	return out
}
