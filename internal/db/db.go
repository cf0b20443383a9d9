package db

import (
	"log"

	"github.com/studiumhub/coursechat/internal/chatbot"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := gdb.AutoMigrate(
		&chatbot.Configuration{},
		&chatbot.Conversation{},
		&chatbot.Message{},
		&chatbot.UsageRecord{},
		&chatbot.PageChunk{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	return gdb
}
