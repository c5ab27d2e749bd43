package main

type Settings struct {
	Port            int      `env:"PORT,default=8000"`
	BasePath        string   `env:"BASE_PATH,default=/tracker"`
	JWTSecret       string   `env:"JWT_SECRET,required=true"`
	APIKeys         []string `env:"API_KEYS"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS"`
	MongoDBURI      string   `env:"MONGODB_URI"`
	MongoDBDatabase string   `env:"MONGODB_DATABASE,default=tracker"`
	LogEncoding     string   `env:"LOG_ENCODING,default=console"`
}
