package main

import (
	"strings"

	"github.com/europasms/sender/controller"
	"github.com/europasms/sender/dao"
	"github.com/europasms/sender/device"
	"github.com/europasms/sender/dispatch"
	_ "github.com/europasms/sender/docs"
	"github.com/europasms/sender/history"
	"github.com/europasms/sender/log"
	"github.com/europasms/sender/modem"
	"github.com/europasms/sender/service"
	"github.com/europasms/sender/util"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

// @title Sms dispatch service HTTP API
// @description Bulk sms dispatch over serial-attached modems

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Error.Println(err)
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	//create db client
	dbClient, err := dao.GetClient(util.GetEnv("DB_PATH", "sms.db"))
	if err != nil {
		log.Fatal(err)
	}

	//create modem transport client
	modemClient, err := modem.NewClient(
		util.GetEnv("GAMMU_RC_PATH", "gammurc"),
		util.GetEnv("CONNECTION", "at"),
		util.GetEnvAsInt("SENDS_PER_SEC", 1))
	if err != nil {
		log.Fatal(err)
	}

	registry := device.NewRegistry()
	store := history.NewStore(util.GetEnv("HISTORY_PATH", "history.jsonl"))
	engine := dispatch.NewEngine(modemClient, store)

	smsService := service.NewService(
		registry,
		modemClient,
		engine,
		dao.NewBatchDao(dbClient),
		dao.NewRecipientDao(dbClient),
		store,
		service.Config{
			CountryPrefix: util.GetEnv("COUNTRY_PREFIX", "55"),
			Delay: dispatch.DelayPolicy{
				MinSec: util.GetEnvAsFloat("SEND_DELAY_MIN_SEC", 0),
				MaxSec: util.GetEnvAsFloat("SEND_DELAY_MAX_SEC", 0),
			},
			ValidateModems:  util.GetEnvAsBool("VALIDATE_MODEMS", true),
			ProbeNumbers:    util.GetEnvAsBool("PROBE_NUMBERS", false),
			StatusStoreDays: util.GetEnvAsInt("STATUS_STORE_DAYS", 7),
			MessageMaxLen:   util.GetEnvAsInt("SMS_MAX_LEN", 300),
			Webhook:         util.GetEnv("WEB_HOOK", ""),
			Preferred:       parseSelected(util.GetEnv("SELECTED_DEVICES", "")),
		},
	)

	//attach http handlers
	e := echo.New()
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.HideBanner = true
	e.Use(middleware.BodyLimit("64K"))

	bindRoutes(e, smsService)

	//start http server
	log.Fatal(e.Start(":" + util.GetEnv("HTTP_PORT", "8080")))
}

func parseSelected(value string) map[string]bool {
	selected := make(map[string]bool)
	for _, dev := range strings.Split(value, ",") {
		dev = strings.TrimSpace(dev)
		if dev != "" {
			selected[dev] = true
		}
	}
	return selected
}

func bindRoutes(e *echo.Echo, service service.Service) {

	e.POST("/sms", controller.GetSendSmsFunc(service))

	e.GET("/sms/:id", controller.GetCheckSmsFunc(service))

	e.POST("/sms/:id/resend", controller.GetResendSmsFunc(service))

	e.POST("/sms/resend-failures", controller.GetResendFailuresFunc(service))

	e.POST("/sms/stop", controller.GetStopSmsFunc(service))

	e.GET("/history", controller.GetHistoryFunc(service))

	e.GET("/report", controller.GetReportFunc(service))

	e.GET("/devices", controller.GetDevicesFunc(service))

	e.POST("/devices/commands", controller.GetDeviceCommandsFunc(service))

	e.POST("/devices/release", controller.GetReleaseDevicesFunc(service))

	e.GET("/health", controller.GetHealthFunc())
}
