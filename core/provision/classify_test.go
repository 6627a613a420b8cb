package provision

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Classification
	}{
		{name: "empty", message: "", want: RealError},
		{name: "blank", message: "   ", want: RealError},
		{name: "already registered", message: "User already registered", want: AlreadyExists},
		{name: "gotrue email exists", message: "A user with this email address has already been registered", want: AlreadyExists},
		{name: "exists", message: "identity exists", want: AlreadyExists},
		{name: "kratos conflict", message: "An identity with the same identifier already exists.", want: AlreadyExists},
		{name: "been invited", message: "This user has Been Invited", want: AlreadyExists},
		{name: "registered upper", message: "EMAIL REGISTERED", want: AlreadyExists},
		{name: "padded", message: "\t Already \n", want: AlreadyExists},
		{name: "service unavailable", message: "Service unavailable", want: RealError},
		{name: "rate limited", message: "For security purposes, you can only request this after 60 seconds", want: RealError},
		{name: "invalid email", message: "Unable to validate email address: invalid format", want: RealError},
		{name: "split marker", message: "been   invited", want: RealError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
