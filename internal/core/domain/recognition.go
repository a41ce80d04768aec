package domain

// Student is a person enrolled with the recognition service.
type Student struct {
	ID        string `json:"student_id"`
	Name      string `json:"name"`
	Class     string `json:"class,omitempty"`
	Status    string `json:"status,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AlertLevel is the severity of a security alert.
type AlertLevel string

const (
	AlertLow    AlertLevel = "LOW"
	AlertMedium AlertLevel = "MEDIUM"
	AlertHigh   AlertLevel = "HIGH"
)

// Alert is a security notice attached to a recognition result.
type Alert struct {
	ID      string     `json:"id"`
	Level   AlertLevel `json:"level"`
	Message string     `json:"message,omitempty"`
}

// Recognition is the server's answer to an image submission.
type Recognition struct {
	Success    bool     `json:"success"`
	Student    *Student `json:"student,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Method     string   `json:"method,omitempty"` // eigenfaces, lbp, hybrid
	Message    string   `json:"message,omitempty"`
	Alert      *Alert   `json:"alert,omitempty"`
}
