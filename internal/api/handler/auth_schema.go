package handler

// Field presence is left to the workflow so it can answer with its own
// error codes; tags here only bound sizes and formats.

type loginRequest struct {
	Email    string `json:"email" validate:"max=320"`
	Password string `json:"password" validate:"max=128"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=320"`
	Password string `json:"password" validate:"max=128"`
	Name     string `json:"name" validate:"max=200"`
	OrgID    string `json:"org_id" validate:"max=128"`
}

type resetRequest struct {
	Email string `json:"email" validate:"max=320"`
}

type updatePasswordRequest struct {
	NewPassword     string `json:"new_password" validate:"max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"max=128"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}
