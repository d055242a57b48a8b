package controller

import (
	"net/http"
	"strconv"

	"github.com/europasms/sender/log"
	"github.com/europasms/sender/service"
	"github.com/europasms/sender/service/dto"
	"github.com/labstack/echo/v4"
)

func mapError(c echo.Context, err error) error {
	switch err.(type) {
	case *service.InvalidPayloadErr:
		return c.String(http.StatusBadRequest, err.Error())
	}
	switch err {
	case service.ErrBusy:
		return c.String(http.StatusConflict, err.Error())
	case service.ErrNoChannels:
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	if err.Error() == "not found" {
		return c.String(http.StatusNotFound, "Not found")
	}
	log.Error.Println(err)
	return c.String(http.StatusInternalServerError, "System malfunction. Please, try later")
}

func parseId(c echo.Context) (uint32, error) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint32(id64), err
}

// SendSms godoc
// @Summary Send sms
// @Description Dispatches an sms message to the specified recipients over attached modems
// @Accept json
// @Produce json
// @Param sms body dto.Message true "Message"
// @Success 200 {object} dto.Id
// @Failure 400 "error description"
// @Failure 409 "another dispatch is running"
// @Failure 503 "no ready channels"
// @Router /sms [post]
func GetSendSmsFunc(srv service.Service) echo.HandlerFunc {

	return func(c echo.Context) error {
		msg := new(dto.Message)
		if err := c.Bind(msg); err != nil {
			return err
		}

		id, err := srv.SendMessage(*msg)
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, id)
	}
}

// CheckSms godoc
// @Summary Check batch
// @Description Returns delivery status of every recipient of the batch
// @Produce json
// @Param id path int true "Batch id"
// @Success 200 {object} dto.BatchStatus
// @Failure 404 "batch not found"
// @Router /sms/{id} [get]
func GetCheckSmsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseId(c)
		if err != nil {
			return err
		}

		status, err := srv.CheckStatusOfBatch(id)
		if err != nil {
			if err.Error() == "not found" {
				return c.String(http.StatusNotFound, "Batch not found "+c.Param("id"))
			}
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, status)
	}
}

// ResendSms godoc
// @Summary Resend failed recipients of a batch
// @Description Submits the failed subset of the batch as a fresh batch
// @Produce json
// @Param id path int true "Batch id"
// @Success 200 {object} dto.Id
// @Failure 400 "error description"
// @Failure 409 "another dispatch is running"
// @Router /sms/{id}/resend [post]
func GetResendSmsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseId(c)
		if err != nil {
			return err
		}

		newId, err := srv.ResendFailed(id)
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, newId)
	}
}

// ResendFailures godoc
// @Summary Resend failures from history
// @Description Builds a fresh batch from every number whose latest history record is a failure
// @Produce json
// @Success 200 {object} dto.Id
// @Failure 400 "nothing to resend"
// @Failure 409 "another dispatch is running"
// @Router /sms/resend-failures [post]
func GetResendFailuresFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := srv.ResendFromHistory()
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, id)
	}
}

// StopSms godoc
// @Summary Stop dispatch
// @Description Asks the running dispatch to stop between recipients
// @Produce json
// @Success 200 "stop requested"
// @Failure 404 "nothing is running"
// @Router /sms/stop [post]
func GetStopSmsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !srv.StopDispatch() {
			return c.String(http.StatusNotFound, "No dispatch is running")
		}
		return c.NoContent(http.StatusOK)
	}
}

// History godoc
// @Summary Send history
// @Description Returns send attempts within the retention window
// @Produce json
// @Param since query string false "Return records at or after this timestamp"
// @Param limit query int false "Return at most this many newest records"
// @Success 200 {object} dto.History
// @Router /history [get]
func GetHistoryFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))

		h, err := srv.History(c.QueryParam("since"), limit)
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, h)
	}
}

// Report godoc
// @Summary Per-channel report
// @Description Returns per-channel delivery counters over the retention window
// @Produce json
// @Success 200 {object} dto.Report
// @Router /report [get]
func GetReportFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		r, err := srv.Report()
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, r)
	}
}

// Devices godoc
// @Summary Attached devices
// @Description Returns the current modem discovery snapshot
// @Produce json
// @Success 200 {array} dto.Device
// @Router /devices [get]
func GetDevicesFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, srv.Devices())
	}
}

// DeviceCommands godoc
// @Summary Run raw AT commands
// @Description Feeds raw AT commands to one modem, outside the dispatch path
// @Accept json
// @Produce json
// @Param commands body dto.RawCommands true "Commands"
// @Success 200 {object} dto.RawResult
// @Failure 400 "error description"
// @Failure 409 "another dispatch is running"
// @Router /devices/commands [post]
func GetDeviceCommandsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(dto.RawCommands)
		if err := c.Bind(req); err != nil {
			return err
		}

		res, err := srv.RunCommands(*req)
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, res)
	}
}

// ReleaseDevices godoc
// @Summary Release device ports
// @Description Kills processes holding the discovered modem ports open
// @Produce json
// @Success 200 {array} dto.ReleaseResult
// @Failure 400 "no devices found"
// @Failure 409 "another dispatch is running"
// @Router /devices/release [post]
func GetReleaseDevicesFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		results, err := srv.ReleaseDevices()
		if err != nil {
			return mapError(c, err)
		}

		return c.JSON(http.StatusOK, results)
	}
}

// Health godoc
// @Summary Health check
// @Produce json
// @Success 200 {object} dto.Health
// @Router /health [get]
func GetHealthFunc() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, dto.Health{Status: "UP"})
	}
}
