package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/catalog"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/middleware"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/response"
)

// MedicineHandler 药品目录处理器
// 目录数据由外部目录服务管理，这里只做带登录态的转发，
// 药店范围固定为当前登录老板自己的药店
type MedicineHandler struct {
	catalog *catalog.Client
}

// NewMedicineHandler 创建药品目录处理器
func NewMedicineHandler(client *catalog.Client) *MedicineHandler {
	return &MedicineHandler{catalog: client}
}

// ListAll 全量药品目录
func (h *MedicineHandler) ListAll(c *gin.Context) {
	medicines, err := h.catalog.ListAllMedicines(c.Request.Context(), middleware.GetToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, medicines)
}

// ListMine 当前老板药店在售的药品
func (h *MedicineHandler) ListMine(c *gin.Context) {
	pharmacy := middleware.GetPharmacy(c)

	medicines, err := h.catalog.ListPharmacyMedicines(c.Request.Context(), middleware.GetToken(c), pharmacy.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, medicines)
}

// Add 把一个药品加入当前老板的药店
func (h *MedicineHandler) Add(c *gin.Context) {
	var med model.Medicine
	if err := c.ShouldBindJSON(&med); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	pharmacy := middleware.GetPharmacy(c)
	created, err := h.catalog.AddMedicine(c.Request.Context(), middleware.GetToken(c), pharmacy.ID, &med)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, created)
}

// UpdateStatus 更新药品状态（上架/缺货）
func (h *MedicineHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	pharmacy := middleware.GetPharmacy(c)
	err := h.catalog.UpdateMedicineStatus(c.Request.Context(), middleware.GetToken(c), pharmacy.ID, c.Param("medicineId"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Remove 把一个药品从当前老板的药店下架
func (h *MedicineHandler) Remove(c *gin.Context) {
	pharmacy := middleware.GetPharmacy(c)

	err := h.catalog.RemoveMedicine(c.Request.Context(), middleware.GetToken(c), pharmacy.ID, c.Param("medicineId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
