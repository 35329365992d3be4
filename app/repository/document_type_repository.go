package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// documentTypeRepository implements the DocumentTypeRepository interface
type documentTypeRepository struct {
	db *gorm.DB
}

// NewDocumentTypeRepository creates a new document type repository instance
func NewDocumentTypeRepository(db *gorm.DB) DocumentTypeRepository {
	return &documentTypeRepository{db: db}
}

// Create creates a new document type in the database
func (r *documentTypeRepository) Create(documentType *models.DocumentType) error {
	return r.db.Create(documentType).Error
}

// GetByID retrieves a document type by its ID
func (r *documentTypeRepository) GetByID(id uint) (*models.DocumentType, error) {
	var documentType models.DocumentType
	err := r.db.First(&documentType, id).Error
	if err != nil {
		return nil, err
	}
	return &documentType, nil
}

// GetByCode retrieves a document type by its code
func (r *documentTypeRepository) GetByCode(code string) (*models.DocumentType, error) {
	var documentType models.DocumentType
	err := r.db.Where("code = ?", code).First(&documentType).Error
	if err != nil {
		return nil, err
	}
	return &documentType, nil
}

// ListActive retrieves all active document types ordered by name
func (r *documentTypeRepository) ListActive() ([]models.DocumentType, error) {
	var documentTypes []models.DocumentType
	err := r.db.Where("active = ?", true).Order("name ASC").Find(&documentTypes).Error
	return documentTypes, err
}

// paymentMethodRepository implements the PaymentMethodRepository interface
type paymentMethodRepository struct {
	db *gorm.DB
}

// NewPaymentMethodRepository creates a new payment method repository instance
func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

// GetByID retrieves a payment method by its ID
func (r *paymentMethodRepository) GetByID(id uint) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.First(&method, id).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// ListActive retrieves all active payment methods
func (r *paymentMethodRepository) ListActive() ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.Where("active = ?", true).Order("name ASC").Find(&methods).Error
	return methods, err
}
