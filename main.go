package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tgsticker_back/authorization"
	"tgsticker_back/cache"
	"tgsticker_back/database"
	"tgsticker_back/imagegen"
	"tgsticker_back/photos"
	"tgsticker_back/stickers"
	filestore "tgsticker_back/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("main: no .env file loaded: %v", err)
	}

	db, err := database.OpenFromEnv()
	if err != nil {
		log.Fatalf("main: open database failed: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Printf("main: close database failed: %v", err)
		}
	}()

	store, err := filestore.NewObjectStorageFromEnv()
	if err != nil {
		log.Fatalf("main: init object storage failed: %v", err)
	}
	if store == nil {
		log.Printf("main: object storage not configured, uploads are disabled")
	}

	genClient, err := imagegen.NewClientFromEnv()
	if err != nil {
		log.Fatalf("main: init image generation client failed: %v", err)
	}

	redisClient, err := cache.NewClientFromEnv()
	if err != nil {
		log.Printf("main: redis unavailable, caching disabled: %v", err)
	}
	defer func() {
		if err := cache.Close(redisClient); err != nil {
			log.Printf("main: close redis failed: %v", err)
		}
	}()

	router := gin.Default()
	router.MaxMultipartMemory = 32 << 20
	router.Use(cors.New(corsConfig()))

	authModule, err := authorization.RegisterRoutes(router, db, store)
	if err != nil {
		log.Fatalf("main: register authorization routes failed: %v", err)
	}
	guard := authModule.Guard()

	photosModule, err := photos.RegisterRoutes(router, guard, db, store)
	if err != nil {
		log.Fatalf("main: register photos routes failed: %v", err)
	}

	if _, err := stickers.RegisterRoutes(router, guard, db, store, photosModule, genClient, redisClient); err != nil {
		log.Fatalf("main: register stickers routes failed: %v", err)
	}

	addr := listenAddr()
	log.Printf("main: listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("main: server stopped: %v", err)
	}
}

func corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	origins := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if origins == "" {
		config.AllowAllOrigins = true
		config.AllowCredentials = false
		return config
	}

	config.AllowOrigins = strings.Split(origins, ",")
	for i := range config.AllowOrigins {
		config.AllowOrigins[i] = strings.TrimSpace(config.AllowOrigins[i])
	}
	return config
}

func listenAddr() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	return ":" + port
}
