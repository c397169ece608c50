package models

import (
	"time"

	"gorm.io/gorm"
)

type Teacher struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
}

type Pass struct {
	gorm.Model
	TeacherID   uint    `gorm:"index;not null"`
	Teacher     Teacher `gorm:"foreignKey:TeacherID"`
	StudentName string  `gorm:"not null"`
	Destination string
	TimeOut     time.Time  `gorm:"index;not null"`
	TimeIn      *time.Time // nil while the student is still out
}

// Open reports whether the student is still out on this pass.
func (p Pass) Open() bool {
	return p.TimeIn == nil
}

type QueueEntry struct {
	gorm.Model
	TeacherID   uint   `gorm:"index;not null"`
	StudentName string `gorm:"not null"`
	Destination string
	Position    int       `gorm:"index;not null"` // contiguous 1..N within a teacher's line
	TimeJoined  time.Time `gorm:"not null"`
}

type ClassPeriod struct {
	gorm.Model
	TeacherID   uint   `gorm:"index;not null"`
	ClassName   string `gorm:"not null"`
	Day         string `gorm:"index;not null"` // weekday name, e.g. "Monday"
	StartMinute int    `gorm:"not null"`       // minutes since midnight
	EndMinute   int    `gorm:"not null"`
	IsActive    bool   `gorm:"default:true"`
}

type Objective struct {
	gorm.Model
	TeacherID     uint   `gorm:"index;not null"`
	ClassPeriodID *uint  `gorm:"index"` // nil for the out-of-class objective
	Text          string `gorm:"not null"`
	OutOfClass    bool   `gorm:"default:false"`
	StartDate     time.Time
	EndDate       time.Time
}

type TVSettings struct {
	gorm.Model
	TeacherID       uint `gorm:"uniqueIndex;not null"`
	Enabled         bool `gorm:"default:false"`
	ShowSchedule    bool `gorm:"default:true"`
	ShowLine        bool `gorm:"default:true"`
	RotationSeconds int  `gorm:"default:30"`
	Background      string
}
