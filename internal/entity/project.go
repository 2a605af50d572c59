package entity

import "time"

// DbProject 表示用户自定义的项目/站点分组，分析记录可以归属到某个项目。
type DbProject struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint    `gorm:"column:user_id;index" json:"user_id"`
	User   *DbUser `gorm:"foreignKey:UserID" json:"-"`

	Name        string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Domain      string `gorm:"column:domain;type:varchar(255)" json:"domain"`
	Description string `gorm:"column:description;type:text" json:"description"`
}

// TableName 指定表名。
func (DbProject) TableName() string {
	return "projects"
}
